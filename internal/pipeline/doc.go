// Package pipeline drives the conversion of a scanned library on a
// provisioned VM.
//
// A run has two phases. Setup uploads and executes the bootstrap script
// that builds the converter image; any failure there aborts the run. Run
// then processes the queued books strictly one after another:
//
//	mkdir → upload → docker run → download → post-process → cleanup
//
// A failing step skips the book and the loop moves on. Only a cancelled
// context (SIGINT/SIGTERM) stops the loop early.
package pipeline
