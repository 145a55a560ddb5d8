package recorder

import (
	"errors"
	"fmt"
)

var (
	ErrSessionInactive = errors.New("recording session is not active")
	ErrNoRecording     = errors.New("no recording session")
)

// A RecordingIOError reports a file system failure while recording.
// It never affects live monitoring.
type RecordingIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *RecordingIOError) Error() string {
	return fmt.Sprintf("recording %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RecordingIOError) Unwrap() error {
	return e.Err
}
