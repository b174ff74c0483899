package remote

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Log files appended by a LogSink.
const (
	StdoutLogFile = "stdout.txt"
	StderrLogFile = "stderr.txt"
)

const (
	defaultPrefix = "[REMOTE] "
	stderrTag     = "[ERR] "
)

// LogSink tees remote output line by line to the console and to log files.
type LogSink struct {
	mu        sync.Mutex
	stdout    io.Writer
	stderr    io.Writer
	stdoutLog io.WriteCloser
	stderrLog io.WriteCloser
	prefix    string

	out *lineWriter
	err *lineWriter
}

// OpenLogSink opens (appending) stdout.txt and stderr.txt in dir and
// echoes lines to the given console writers.
func OpenLogSink(dir string, stdout, stderr io.Writer) (*LogSink, error) {
	outLog, err := openAppend(filepath.Join(dir, StdoutLogFile))
	if err != nil {
		return nil, err
	}
	errLog, err := openAppend(filepath.Join(dir, StderrLogFile))
	if err != nil {
		_ = outLog.Close()
		return nil, err
	}
	return NewLogSink(stdout, stderr, outLog, errLog), nil
}

// NewLogSink creates a sink over explicit writers.
func NewLogSink(stdout, stderr io.Writer, stdoutLog, stderrLog io.WriteCloser) *LogSink {
	s := &LogSink{
		stdout:    stdout,
		stderr:    stderr,
		stdoutLog: stdoutLog,
		stderrLog: stderrLog,
		prefix:    defaultPrefix,
	}
	s.out = &lineWriter{sink: s, isErr: false}
	s.err = &lineWriter{sink: s, isErr: true}
	return s
}

func openAppend(path string) (*os.File, error) {
	// #nosec G304
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}

// SetBook sets the prefix for the book at position current of total.
func (s *LogSink) SetBook(current, total int, title string) {
	s.setPrefix(fmt.Sprintf("[%d/%d] %s ", current, total, title))
}

// ClearBook restores the prefix used outside of a book.
func (s *LogSink) ClearBook() {
	s.setPrefix(defaultPrefix)
}

func (s *LogSink) setPrefix(p string) {
	s.Flush()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefix = p
}

// Streams returns line writers for stdout and stderr output.
func (s *LogSink) Streams() Streams {
	return Streams{Stdout: s.out, Stderr: s.err}
}

// Flush emits any partial lines still buffered.
func (s *LogSink) Flush() {
	s.out.flush()
	s.err.flush()
}

// Close flushes and closes the log files.
func (s *LogSink) Close() error {
	s.Flush()
	errOut := s.stdoutLog.Close()
	errErr := s.stderrLog.Close()
	if errOut != nil {
		return errOut
	}
	return errErr
}

func (s *LogSink) emit(line []byte, isErr bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	console, logFile, tag := s.stdout, s.stdoutLog, ""
	if isErr {
		console, logFile, tag = s.stderr, s.stderrLog, stderrTag
	}

	_, _ = fmt.Fprintf(console, "%s%s%s\n", s.prefix, tag, line)
	_, _ = logFile.Write(append(line, '\n'))
}

// lineWriter splits a byte stream into lines for its sink.
type lineWriter struct {
	sink  *LogSink
	isErr bool

	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(w.buf.Next(i+1)[:i], []byte("\r"))
		w.sink.emit(bytes.Clone(line), w.isErr)
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() == 0 {
		return
	}
	line := bytes.Clone(w.buf.Bytes())
	w.buf.Reset()
	w.sink.emit(line, w.isErr)
}
