package graph

import (
	"errors"
	"fmt"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/audiodevice"
	"github.com/google/uuid"
)

var (
	ErrInvalidFormat  = errors.New("invalid negotiated format")
	ErrHandleReleased = errors.New("graph handle already released")
	ErrNotRunning     = errors.New("graph handle is not running")
	ErrUnknownHandle  = errors.New("graph handle does not belong to this graph")
)

// A GraphError reports a failed build or state transition.
// The handle is left in a well-defined state (see Graph.Start).
type GraphError struct {
	Op       string
	HandleID uuid.UUID
	Err      error
}

func (e *GraphError) Error() string {
	if e.HandleID == uuid.Nil {
		return fmt.Sprintf("graph %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("graph %s (handle %s): %v", e.Op, e.HandleID, e.Err)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// --------------------------------------------------------------------------------

// The formats a graph is built against, as negotiated by the session.
type Format struct {
	Input  audiodevice.DeviceProperties
	Output audiodevice.DeviceProperties

	// The buffer size the session granted, in frames. Zero lets the engine choose.
	FramesPerBuffer int
}

// Everything an Engine needs to open a duplex stream.
type StreamParams struct {
	// Empty means the system default device.
	InputDeviceID  string
	OutputDeviceID string

	Format Format
}

// Called on the real-time thread with interleaved input and output buffers.
// The function must fill out completely and must not block or allocate.
type ProcessFunc func(in, out []float32)

// An open duplex stream. Stop must not return while a ProcessFunc call is in flight.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// The OS audio collaborator the graph renders through.
//
// Open acquires the OS resources for one graph handle; Close on the returned
// Stream releases them.
type Engine interface {
	Open(params StreamParams, process ProcessFunc) (Stream, error)
}
