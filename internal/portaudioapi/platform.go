package portaudioapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/session"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/audiodevice"
	"github.com/gordonklaus/portaudio"
	"github.com/google/uuid"
)

const eventBufferSize = 16

var (
	errAlreadyActive = errors.New("session already active")
	errNotActive     = errors.New("session not active")
)

// Platform is a session.Platform for desktop hosts.
//
// PortAudio has no notion of a shared audio session, so the Platform keeps
// the requested category and endpoints itself, reports the route from the
// chosen devices' defaults, and polls the device lists for route changes
// while active. Interruptions are never reported.
type Platform struct {
	logger       *slog.Logger
	devices      *DeviceAPI
	pollInterval time.Duration
	events       chan session.Event

	mu              sync.Mutex
	options         session.RouteOptions
	preferredInput  string
	preferredOutput string
	bufferDuration  time.Duration
	active          bool
	stopWatcher     context.CancelFunc
	watcherDone     chan struct{}
}

// Create a new Platform polling devices every pollInterval while active.
// If logger is nil, slog.Default() is used.
func NewPlatform(devices *DeviceAPI, pollInterval time.Duration, logger *slog.Logger) *Platform {
	if logger == nil {
		logger = slog.Default()
	}
	return &Platform{
		logger:         logger.With("portaudio platform uuid", uuid.New()),
		devices:        devices,
		pollInterval:   pollInterval,
		events:         make(chan session.Event, eventBufferSize),
		bufferDuration: session.DefaultBufferDuration,
	}
}

func (p *Platform) SetCategory(category session.Category, options session.RouteOptions) error {
	if category != session.CategoryPlayAndRecord {
		return fmt.Errorf("unsupported category %v", category)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.options = options
	return nil
}

func (p *Platform) SetPreferredInput(id string) error {
	if id != "" {
		if _, err := lookupDevice(id, true); err != nil {
			return fmt.Errorf("input %q: %w", id, err)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.preferredInput = id
	return nil
}

func (p *Platform) SetPreferredOutput(id string) error {
	if id != "" {
		if _, err := lookupDevice(id, false); err != nil {
			return fmt.Errorf("output %q: %w", id, err)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.preferredOutput = id
	return nil
}

func (p *Platform) SetPreferredBufferDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("buffer duration %v must be positive", d)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bufferDuration = d
	return nil
}

// Take a host reference and start watching devices.
func (p *Platform) Activate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return errAlreadyActive
	}
	if err := acquireHost(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	watcher := session.NewDeviceWatcher(p.devices, p.pollInterval, p.logger)
	go func() {
		defer close(done)
		watcher.Run(ctx, p.events)
	}()

	p.active = true
	p.stopWatcher = cancel
	p.watcherDone = done
	p.logger.Debug("session activated", "pollInterval", p.pollInterval)
	return nil
}

func (p *Platform) Deactivate() error {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return errNotActive
	}
	p.active = false
	cancel, done := p.stopWatcher, p.watcherDone
	p.stopWatcher, p.watcherDone = nil, nil
	p.mu.Unlock()

	cancel()
	<-done
	p.logger.Debug("session deactivated")
	return releaseHost()
}

// The route the preferred (or default) devices give. The granted buffer
// duration is the request, raised to the input device's low latency.
// A device that cannot be found yields a zero format.
func (p *Platform) CurrentRoute() session.Route {
	p.mu.Lock()
	inputID, outputID := p.preferredInput, p.preferredOutput
	requested := p.bufferDuration
	p.mu.Unlock()

	var route session.Route
	route.BufferDuration = requested

	if in, err := lookupDevice(inputID, true); err != nil {
		p.logger.Warn("input device not available", "input", inputID, "err", err)
	} else {
		route.Input = toAudioIODevice(in, true).Descriptor()
		route.InputFormat = properties(in, in.MaxInputChannels)
		route.BufferDuration = max(requested, in.DefaultLowInputLatency)
	}

	if out, err := lookupDevice(outputID, false); err != nil {
		p.logger.Warn("output device not available", "output", outputID, "err", err)
	} else {
		route.Output = toAudioIODevice(out, false).Descriptor()
		route.OutputFormat = properties(out, out.MaxOutputChannels)
	}
	return route
}

func (p *Platform) Events() <-chan session.Event {
	return p.events
}

func properties(d *portaudio.DeviceInfo, channels int) audiodevice.DeviceProperties {
	return audiodevice.DeviceProperties{
		SampleRate:  int(d.DefaultSampleRate),
		NumChannels: min(channels, maxChannels),
	}
}
