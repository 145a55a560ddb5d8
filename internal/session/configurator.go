package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/audiodevice"
	"github.com/google/uuid"
)

// 10ms is short enough that the delay is all the user hears, and long enough
// that most hosts grant it.
const DefaultBufferDuration = 10 * time.Millisecond

type Options struct {
	// The buffer duration to ask for. The OS may grant something larger.
	BufferDuration time.Duration

	// Let other applications keep playing while monitoring.
	MixWithOthers bool
}

// The Configurator negotiates a play-and-record session with the Platform
// and owns its activation.
//
// It is not safe for concurrent Configure calls; the pipeline controller
// drives it from a single goroutine. State may be read from anywhere.
type Configurator struct {
	logger   *slog.Logger
	platform Platform
	catalog  *audioapi.Catalog
	options  Options

	mu     sync.Mutex
	active bool
	state  State
}

// Create a new Configurator. catalog is used to find the kind of an explicitly
// chosen output and may be nil. If logger is nil, slog.Default() is used.
func NewConfigurator(platform Platform, catalog *audioapi.Catalog, options Options, logger *slog.Logger) *Configurator {
	if logger == nil {
		logger = slog.Default()
	}
	if options.BufferDuration <= 0 {
		options.BufferDuration = DefaultBufferDuration
	}
	return &Configurator{
		logger:   logger.With("session configurator uuid", uuid.New()),
		platform: platform,
		catalog:  catalog,
		options:  options,
	}
}

// Configure (or reconfigure) the session for concurrent input and output on
// the preferred endpoints, then activate it. Empty IDs mean the system default.
//
// The returned State is re-read from the platform, so BufferDuration is what
// was granted, not what was asked for.
//
// On failure the session is left deactivated and a *ConfigError is returned.
func (c *Configurator) Configure(preferredInputID, preferredOutputID string) (State, error) {
	options := c.routeOptions(preferredOutputID)
	logger := c.logger.With(
		"preferredInput", preferredInputID,
		"preferredOutput", preferredOutputID,
	)
	logger.Debug("configuring session", "options", options)

	if err := c.platform.SetCategory(CategoryPlayAndRecord, options); err != nil {
		return State{}, c.fail(logger, "set category", ErrCategoryRejected, err)
	}
	if err := c.platform.SetPreferredInput(preferredInputID); err != nil {
		return State{}, c.fail(logger, "select input", ErrEndpointNotSelectable, err)
	}
	if err := c.platform.SetPreferredOutput(preferredOutputID); err != nil {
		return State{}, c.fail(logger, "select output", ErrEndpointNotSelectable, err)
	}
	if err := c.platform.SetPreferredBufferDuration(c.options.BufferDuration); err != nil {
		return State{}, c.fail(logger, "set buffer duration", ErrBufferDurationRejected, err)
	}

	c.mu.Lock()
	wasActive := c.active
	c.mu.Unlock()
	if !wasActive {
		if err := c.platform.Activate(); err != nil {
			return State{}, c.fail(logger, "activate", ErrActivationRejected, err)
		}
		c.mu.Lock()
		c.active = true
		c.mu.Unlock()
	}

	route := c.platform.CurrentRoute()
	if !route.InputFormat.Valid() {
		return State{}, c.fail(logger, "activate", ErrActivationRejected, fmt.Errorf("granted route has no usable input format (%s)", route.InputFormat))
	}
	if route.BufferDuration != c.options.BufferDuration {
		logger.Info(
			"buffer duration differs from request",
			"requested", c.options.BufferDuration,
			"granted", route.BufferDuration,
		)
	}

	state := stateFromRoute(true, route)
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	logger.Info(
		"session configured",
		"input", route.Input.ID,
		"output", route.Output.ID,
		"inputFormat", route.InputFormat,
		"outputFormat", route.OutputFormat,
		"bufferDuration", route.BufferDuration,
	)
	return state, nil
}

// Deactivate the session. Does nothing if it is not active, so every
// activation is released exactly once however often this is called.
func (c *Configurator) Release() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	c.active = false
	c.state = State{}
	c.mu.Unlock()

	if err := c.platform.Deactivate(); err != nil {
		c.logger.Warn("error while deactivating session", "err", err)
		return &ConfigError{Op: "deactivate", Err: err}
	}
	c.logger.Debug("session released")
	return nil
}

// The session state as of the last successful Configure.
func (c *Configurator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Configurator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Route change and interruption notifications from the platform.
func (c *Configurator) Events() <-chan Event {
	return c.platform.Events()
}

// Bluetooth, BLE and AirPlay routes are always allowed. DefaultToSpeaker is
// only requested when no output was chosen or the chosen output is the
// built-in speaker, so it never overrides an explicit external output.
func (c *Configurator) routeOptions(preferredOutputID string) RouteOptions {
	options := AllowBluetooth | AllowBluetoothLE | AllowAirPlay
	if c.options.MixWithOthers {
		options |= MixWithOthers
	}
	if preferredOutputID == "" {
		return options | DefaultToSpeaker
	}
	if c.catalog != nil {
		if device, ok := c.catalog.FindOutput(preferredOutputID); ok && device.Kind == audiodevice.KindBuiltInSpeaker {
			options |= DefaultToSpeaker
		}
	}
	return options
}

func (c *Configurator) fail(logger *slog.Logger, op string, kind error, cause error) error {
	logger.Warn("session configuration failed", "op", op, "err", cause)

	c.mu.Lock()
	wasActive := c.active
	c.active = false
	c.state = State{}
	c.mu.Unlock()

	if wasActive {
		if err := c.platform.Deactivate(); err != nil {
			logger.Warn("error while deactivating after failed configuration", "err", err)
		}
	}
	return &ConfigError{Op: op, Err: fmt.Errorf("%w: %w", kind, cause)}
}
