// Package remote defines how the pipeline talks to the conversion VM.
//
// A [Transport] runs shell commands and copies files; its output is
// streamed into [Streams], usually the two line writers of a [LogSink]
// which tag every line with the current progress prefix and keep a raw
// copy in stdout.txt and stderr.txt.
package remote
