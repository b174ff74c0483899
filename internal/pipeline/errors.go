package pipeline

import "errors"

var (
	// ErrSetupFailed is returned when the remote bootstrap did not complete.
	ErrSetupFailed = errors.New("remote setup failed")

	// ErrInterrupted is returned when the run was cancelled between or during books.
	ErrInterrupted = errors.New("conversion run interrupted")

	// ErrNoAudiobook is recorded when the converter produced no .m4b file.
	ErrNoAudiobook = errors.New("no M4B file found in downloaded output")
)
