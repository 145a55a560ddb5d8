package audiotest

import (
	"errors"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/session"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/audiodevice"
)

const (
	DefaultInputID  = "builtin-mic"
	DefaultOutputID = "builtin-speaker"
)

var ErrUnknownEndpoint = errors.New("unknown endpoint")

// A FakePlatform is an in-memory session.Platform.
//
// Every step of a configuration can be made to fail, and events are
// injected with Emit.
type FakePlatform struct {
	mu sync.Mutex

	inputFormat  audiodevice.DeviceProperties
	outputFormat audiodevice.DeviceProperties
	minBuffer    time.Duration

	category        session.Category
	options         session.RouteOptions
	preferredInput  string
	preferredOutput string
	requestedBuffer time.Duration
	unselectable    map[string]bool

	active        bool
	activations   int
	deactivations int

	categoryErr   error
	bufferErr     error
	activateErr   error
	deactivateErr error

	events chan session.Event
}

func NewFakePlatform(format audiodevice.DeviceProperties) *FakePlatform {
	return &FakePlatform{
		inputFormat:  format,
		outputFormat: format,
		unselectable: make(map[string]bool),
		events:       make(chan session.Event, 16),
	}
}

func (p *FakePlatform) SetCategory(category session.Category, options session.RouteOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.categoryErr != nil {
		return p.categoryErr
	}
	p.category = category
	p.options = options
	return nil
}

func (p *FakePlatform) SetPreferredInput(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unselectable[id] {
		return ErrUnknownEndpoint
	}
	p.preferredInput = id
	return nil
}

func (p *FakePlatform) SetPreferredOutput(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unselectable[id] {
		return ErrUnknownEndpoint
	}
	p.preferredOutput = id
	return nil
}

func (p *FakePlatform) SetPreferredBufferDuration(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bufferErr != nil {
		return p.bufferErr
	}
	p.requestedBuffer = d
	return nil
}

func (p *FakePlatform) Activate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.activateErr != nil {
		return p.activateErr
	}
	if p.active {
		return errors.New("session activated twice")
	}
	p.active = true
	p.activations++
	return nil
}

func (p *FakePlatform) Deactivate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return errors.New("session deactivated while inactive")
	}
	p.active = false
	p.deactivations++
	return p.deactivateErr
}

// The granted route. The buffer duration is the request, raised to the
// minimum set with GrantMinimumBuffer.
func (p *FakePlatform) CurrentRoute() session.Route {
	p.mu.Lock()
	defer p.mu.Unlock()

	input := p.preferredInput
	if input == "" {
		input = DefaultInputID
	}
	output := p.preferredOutput
	if output == "" {
		output = DefaultOutputID
	}
	return session.Route{
		Input:          audiodevice.DeviceDescriptor{ID: input, DisplayName: input, Kind: audiodevice.KindMicrophone},
		Output:         audiodevice.DeviceDescriptor{ID: output, DisplayName: output, Kind: audiodevice.KindBuiltInSpeaker},
		InputFormat:    p.inputFormat,
		OutputFormat:   p.outputFormat,
		BufferDuration: max(p.requestedBuffer, p.minBuffer),
	}
}

func (p *FakePlatform) Events() <-chan session.Event {
	return p.events
}

// --------------------------------------------------------------------------------
// Test controls

// Deliver an event as the OS would.
func (p *FakePlatform) Emit(event session.Event) {
	p.events <- event
}

func (p *FakePlatform) FailCategory(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.categoryErr = err
}

func (p *FakePlatform) FailBufferDuration(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bufferErr = err
}

func (p *FakePlatform) FailActivate(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activateErr = err
}

// Deactivate still deactivates, but reports err.
func (p *FakePlatform) FailDeactivate(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deactivateErr = err
}

func (p *FakePlatform) MakeUnselectable(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unselectable[id] = true
}

func (p *FakePlatform) GrantMinimumBuffer(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minBuffer = d
}

// Change the formats reported by the next CurrentRoute, as after switching
// to different hardware.
func (p *FakePlatform) SetFormats(input, output audiodevice.DeviceProperties) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputFormat = input
	p.outputFormat = output
}

func (p *FakePlatform) Options() session.RouteOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.options
}

func (p *FakePlatform) RequestedBuffer() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requestedBuffer
}

func (p *FakePlatform) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *FakePlatform) Activations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activations
}

func (p *FakePlatform) Deactivations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deactivations
}
