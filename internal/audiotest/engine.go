// Package audiotest provides in-memory stand-ins for the OS collaborators of
// the pipeline (engine, session platform, background tasks), each of which
// counts the resources it hands out.
package audiotest

import (
	"errors"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/graph"
)

var (
	ErrInjectedStart = errors.New("injected start failure")
	ErrInjectedOpen  = errors.New("injected open failure")
)

// A FakeEngine opens FakeStreams and tracks how many are open.
type FakeEngine struct {
	mu            sync.Mutex
	opened        int
	closed        int
	maxLive       int
	startFailures int
	openErr       error
	streams       []*FakeStream
}

func NewFakeEngine() *FakeEngine {
	return &FakeEngine{}
}

func (e *FakeEngine) Open(params graph.StreamParams, process graph.ProcessFunc) (graph.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.openErr != nil {
		return nil, e.openErr
	}
	e.opened++
	if live := e.opened - e.closed; live > e.maxLive {
		e.maxLive = live
	}
	s := &FakeStream{
		engine:  e,
		Params:  params,
		process: process,
	}
	e.streams = append(e.streams, s)
	return s, nil
}

// Make the next n calls to Start fail.
func (e *FakeEngine) FailNextStarts(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startFailures = n
}

// Make every following Open fail with err, or succeed again if err is nil.
func (e *FakeEngine) FailOpen(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openErr = err
}

// Streams opened and not yet closed.
func (e *FakeEngine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened - e.closed
}

// The most streams that were ever open at once.
func (e *FakeEngine) MaxLive() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxLive
}

func (e *FakeEngine) Opened() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened
}

// The most recently opened stream, or nil.
func (e *FakeEngine) Current() *FakeStream {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.streams) == 0 {
		return nil
	}
	return e.streams[len(e.streams)-1]
}

// --------------------------------------------------------------------------------

// A FakeStream runs its ProcessFunc only when a test pushes a buffer.
//
// Push holds the stream lock while processing, so Stop waits for an
// in-flight callback the way a real host does.
type FakeStream struct {
	engine  *FakeEngine
	process graph.ProcessFunc
	Params  graph.StreamParams

	mu      sync.Mutex
	started bool
	closed  bool
	starts  int
}

func (s *FakeStream) Start() error {
	s.engine.mu.Lock()
	fail := s.engine.startFailures > 0
	if fail {
		s.engine.startFailures--
	}
	s.engine.mu.Unlock()
	if fail {
		return ErrInjectedStart
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("start on closed stream")
	}
	s.started = true
	s.starts++
	return nil
}

func (s *FakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *FakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("stream closed twice")
	}
	s.closed = true
	s.started = false

	s.engine.mu.Lock()
	s.engine.closed++
	s.engine.mu.Unlock()
	return nil
}

func (s *FakeStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *FakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Run one callback with interleaved input and return the interleaved output.
// Returns false, and does not call back, unless the stream is started.
func (s *FakeStream) Push(in []float32) ([]float32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.closed {
		return nil, false
	}
	format := s.Params.Format
	frames := len(in) / format.Input.NumChannels
	out := make([]float32, frames*format.Output.NumChannels)
	s.process(in, out)
	return out, true
}
