package portaudioapi

import (
	"fmt"
	"log/slog"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/graph"
	"github.com/gordonklaus/portaudio"
	"github.com/google/uuid"
)

// Engine opens full-duplex PortAudio streams for graph handles.
type Engine struct {
	logger *slog.Logger
}

// Create a new Engine, initializing PortAudio. Call Close when done.
// If logger is nil, slog.Default() is used.
func NewEngine(logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := acquireHost(); err != nil {
		return nil, err
	}
	return &Engine{
		logger: logger.With("portaudio engine uuid", uuid.New()),
	}, nil
}

func (e *Engine) Close() error {
	return releaseHost()
}

// Open a duplex stream on the requested devices, at the input's sample rate
// and the session's buffer size. portaudio.Stream's Stop waits for pending
// buffers, as graph.Stream requires.
func (e *Engine) Open(params graph.StreamParams, process graph.ProcessFunc) (graph.Stream, error) {
	in, err := lookupDevice(params.InputDeviceID, true)
	if err != nil {
		return nil, fmt.Errorf("input %q: %w", params.InputDeviceID, err)
	}
	out, err := lookupDevice(params.OutputDeviceID, false)
	if err != nil {
		return nil, fmt.Errorf("output %q: %w", params.OutputDeviceID, err)
	}

	streamParams := portaudio.LowLatencyParameters(in, out)
	streamParams.Input.Channels = params.Format.Input.NumChannels
	streamParams.Output.Channels = params.Format.Output.NumChannels
	streamParams.SampleRate = float64(params.Format.Input.SampleRate)
	streamParams.FramesPerBuffer = params.Format.FramesPerBuffer

	stream, err := portaudio.OpenStream(streamParams, func(in, out []float32) {
		process(in, out)
	})
	if err != nil {
		e.logger.Error(
			"failed to open stream",
			"err", err,
			"input", in.Name,
			"output", out.Name,
			"sampleRate", streamParams.SampleRate,
		)
		return nil, err
	}

	e.logger.Debug(
		"opened stream",
		"input", in.Name,
		"output", out.Name,
		"inputChannels", streamParams.Input.Channels,
		"outputChannels", streamParams.Output.Channels,
		"sampleRate", streamParams.SampleRate,
		"framesPerBuffer", streamParams.FramesPerBuffer,
	)
	return stream, nil
}
