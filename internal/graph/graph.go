package graph

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// The lifecycle state of a graph handle.
type State int

const (
	NotBuilt State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case NotBuilt:
		return "NotBuilt"
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// What the graph needs from the pipeline configuration.
type Config struct {
	DelaySeconds float64

	// Empty means the system default device.
	InputDeviceID  string
	OutputDeviceID string
}

// Delay effect settings used for monitoring: no repeats, and only the delayed
// signal is audible.
const (
	monitorFeedback  float32 = 0
	monitorWetDryMix float32 = 100
)

// --------------------------------------------------------------------------------

// A Graph owns at most one live Handle at a time.
//
// Building a new handle always releases the previous one first, so two
// handles never have callbacks registered with the engine at once.
type Graph struct {
	logger *slog.Logger
	engine Engine

	mu   sync.Mutex
	live *Handle
}

// Create a new Graph rendering through engine.
// If logger is nil, slog.Default() is used.
func NewGraph(engine Engine, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		logger: logger,
		engine: engine,
	}
}

// Build input -> delay -> mixer -> output against the negotiated format and
// open a stream for it. The returned handle is NotBuilt until Start.
//
// Processing runs in the input's sample rate, mixed down to mono. Only the
// output connection adapts, to the output's channel count; the output runs
// at the input's rate.
func (g *Graph) Build(config Config, format Format) (*Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.live != nil {
		g.logger.Warn("building over a live graph handle, releasing it first", "handleID", g.live.id)
		if err := g.live.release(); err != nil {
			g.logger.Error("error while releasing previous graph handle", "err", err)
		}
		g.live = nil
	}

	if !format.Input.Valid() || format.Output.NumChannels <= 0 {
		return nil, &GraphError{Op: "build", Err: ErrInvalidFormat}
	}
	if format.Output.SampleRate != format.Input.SampleRate {
		g.logger.Debug(
			"output runs at the input sample rate",
			"inputRate", format.Input.SampleRate,
			"outputRate", format.Output.SampleRate,
		)
		format.Output.SampleRate = format.Input.SampleRate
	}

	h := newHandle(config, format, g.logger)
	stream, err := g.engine.Open(StreamParams{
		InputDeviceID:  config.InputDeviceID,
		OutputDeviceID: config.OutputDeviceID,
		Format:         format,
	}, h.process)
	if err != nil {
		h.logger.Error("could not open stream", "err", err)
		return nil, &GraphError{Op: "build", HandleID: h.id, Err: err}
	}
	h.stream = stream
	g.live = h

	h.logger.Debug(
		"built graph",
		"input", format.Input,
		"output", format.Output,
		"framesPerBuffer", format.FramesPerBuffer,
		"delaySeconds", h.delay.seconds(),
	)
	return h, nil
}

// Change the delay time of a handle without rebuilding it. The value is
// clamped to [0, 5] seconds; the clamped value is returned.
func (g *Graph) SetDelay(h *Handle, seconds float64) (float64, error) {
	if h == nil {
		return 0, &GraphError{Op: "set delay", Err: ErrUnknownHandle}
	}
	applied := h.delay.setDelay(seconds)
	h.logger.Debug("set delay", "requested", seconds, "applied", applied)
	return applied, nil
}

// Start rendering. Starting a Running handle is a no-op.
//
// If the engine refuses, the handle is left NotBuilt with its stream still
// open; the caller may retry Start or release it with Stop.
func (g *Graph) Start(h *Handle) error {
	if h == nil {
		return &GraphError{Op: "start", Err: ErrUnknownHandle}
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return &GraphError{Op: "start", HandleID: h.id, Err: ErrHandleReleased}
	}
	if h.state == Running {
		return nil
	}
	if err := h.stream.Start(); err != nil {
		h.state = NotBuilt
		h.logger.Warn("could not start stream", "err", err)
		return &GraphError{Op: "start", HandleID: h.id, Err: err}
	}
	h.state = Running
	h.logger.Debug("started graph")
	return nil
}

// Stop rendering but keep the stream open. Pausing a handle that is not
// Running is a no-op.
func (g *Graph) Pause(h *Handle) error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released || h.state != Running {
		return nil
	}
	if err := h.stream.Stop(); err != nil {
		return &GraphError{Op: "pause", HandleID: h.id, Err: err}
	}
	h.state = Stopped
	h.logger.Debug("paused graph")
	return nil
}

// Stop rendering and release every OS resource the handle holds.
// Stopping a released handle is a no-op. The handle cannot be started again.
func (g *Graph) Stop(h *Handle) error {
	if h == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	err := h.release()
	if g.live == h {
		g.live = nil
	}
	return err
}

// The currently live handle, or nil.
func (g *Graph) Live() *Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.live
}

// --------------------------------------------------------------------------------

// A Handle is one built instance of the graph.
//
// All methods except process are for the control thread. process is the
// engine callback and only touches atomics and buffers allocated at build.
type Handle struct {
	id     uuid.UUID
	logger *slog.Logger
	format Format
	stream Stream

	input  *inputNode
	delay  *delayNode
	mixer  *mixerNode
	output *outputNode

	taps     atomic.Pointer[[]tap]
	position atomic.Uint64

	mu        sync.Mutex
	state     State
	released  bool
	nextTapID TapID
}

func newHandle(config Config, format Format, logger *slog.Logger) *Handle {
	id := uuid.New()
	h := &Handle{
		id:     id,
		logger: logger.With("graph handle uuid", id),
		format: format,
		input:  newInputNode(format.Input.NumChannels),
		delay:  newDelayNode(format.Input.SampleRate, config.DelaySeconds, monitorFeedback, monitorWetDryMix),
		mixer:  newMixerNode(),
		output: newOutputNode(format.Output.NumChannels),
		state:  NotBuilt,
	}
	empty := []tap{}
	h.taps.Store(&empty)
	return h
}

func (h *Handle) ID() uuid.UUID {
	return h.id
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// The format the handle was built against, after output adaptation.
func (h *Handle) Format() Format {
	return h.format
}

// The delay time currently applied, in seconds.
func (h *Handle) DelaySeconds() float64 {
	return h.delay.seconds()
}

// Identities of the input, delay, mixer and output nodes, in that order.
// They never change for the lifetime of the handle.
func (h *Handle) NodeIDs() [4]uuid.UUID {
	return [4]uuid.UUID{h.input.id, h.delay.id, h.mixer.id, h.output.id}
}

// Frames processed since the handle was built.
func (h *Handle) Position() uint64 {
	return h.position.Load()
}

func (h *Handle) release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}
	h.released = true

	var stopErr error
	if h.state == Running {
		stopErr = h.stream.Stop()
		if stopErr != nil {
			h.logger.Warn("error while stopping stream", "err", stopErr)
		}
	}
	h.state = Stopped

	empty := []tap{}
	h.taps.Store(&empty)

	if err := h.stream.Close(); err != nil {
		h.logger.Error("error while closing stream", "err", err)
		return &GraphError{Op: "stop", HandleID: h.id, Err: err}
	}
	h.logger.Debug("released graph")
	if stopErr != nil {
		return &GraphError{Op: "stop", HandleID: h.id, Err: stopErr}
	}
	return nil
}

// The engine callback. Runs on the real-time thread.
func (h *Handle) process(in, out []float32) {
	inChannels := h.format.Input.NumChannels
	outChannels := h.format.Output.NumChannels

	frames := len(out) / outChannels
	if len(in) > 0 {
		frames = min(frames, len(in)/inChannels)
	}

	for start := 0; start < frames; start += maxChunkFrames {
		count := min(maxChunkFrames, frames-start)

		var chunkIn []float32
		if len(in) > 0 {
			chunkIn = in[start*inChannels : (start+count)*inChannels]
		}
		mono := h.input.process(chunkIn, count)

		position := h.position.Add(uint64(count)) - uint64(count)
		for _, t := range *h.taps.Load() {
			t.fn(mono, position)
		}

		h.delay.process(mono)
		h.mixer.process(mono)
		h.output.process(mono, out[start*outChannels:(start+count)*outChannels])
	}

	clear(out[frames*outChannels:])
}
