package pipeline

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/graph"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/meter"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/recorder"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/session"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/audiodevice"
	"github.com/google/uuid"
)

// The OS collaborators a Controller drives.
type Dependencies struct {
	Devices  audioapi.AudioIODeviceAPI
	Platform session.Platform
	Engine   graph.Engine
	// May be nil.
	Background BackgroundTasks
}

// The Controller owns the session, the graph, the meter and the recorder,
// and keeps the graph either fully running or fully stopped.
//
// Every operation, session event, retry and meter poll runs on one control
// loop goroutine. Public methods hand their work to that loop and wait for
// the result, so they are safe to call from any goroutine except from inside
// a Listener callback.
type Controller struct {
	logger *slog.Logger

	catalog      *audioapi.Catalog
	configurator *session.Configurator
	graph        *graph.Graph
	meter        *meter.Meter
	recorder     *recorder.Recorder
	background   BackgroundTasks
	listener     Listener
	options      Options

	commands  chan func()
	events    <-chan session.Event
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Everything below is owned by the control loop.

	state        State
	config       Config
	sessionState session.State
	handle       *graph.Handle
	// The handle the meter tap is installed on.
	tapped        *graph.Handle
	endBackground func()

	// Armed, or stopped and awaiting save/discard.
	recording        *recorder.Session
	reportedWriteErr uint64

	// Whether the graph should be rendering once the current recovery is done.
	wantRunning bool
	// Set by Interrupted(Began) when it paused a running graph.
	interrupted bool

	generation   uint64
	retryTimer   *time.Timer
	retryPending bool

	meterTicker *time.Ticker
	meterC      <-chan time.Time
}

// Create a Controller and start its control loop. Call Close to stop the loop.
// If logger is nil, slog.Default() is used.
func NewController(deps Dependencies, options Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	logger = logger.With("controller uuid", id)
	options = options.withDefaults()

	background := deps.Background
	if background == nil {
		background = noBackground{}
	}

	catalog := audioapi.NewCatalog(deps.Devices, logger)
	configurator := session.NewConfigurator(deps.Platform, catalog, options.Session, logger)

	c := &Controller{
		logger:       logger,
		catalog:      catalog,
		configurator: configurator,
		graph:        graph.NewGraph(deps.Engine, logger),
		meter:        meter.New(),
		recorder:     recorder.New(options.RecordingsDirectory, logger),
		background:   background,
		listener:     options.Listener,
		options:      options,
		commands:     make(chan func()),
		events:       configurator.Events(),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		state:        Idle,
	}
	go c.loop()
	return c
}

// --------------------------------------------------------------------------------
// Public operations

// Acquire the session, build and start the graph, and attach the meter.
// Valid from Idle, or from Stopped after an exhausted recovery.
//
// On failure everything acquired so far is released, the state is Idle again
// and the error (a *session.ConfigError or *graph.GraphError) is returned.
func (c *Controller) StartMonitoring(config Config) error {
	return c.do(func() error { return c.startMonitoring(config) })
}

// Change the delay without rebuilding the graph. Valid while Running or Paused.
func (c *Controller) UpdateDelay(seconds float64) error {
	return c.do(func() error { return c.updateDelay(seconds) })
}

// Switch to other devices. Valid while Running or Paused; runs the same
// pause, reconfigure, rebuild, restart sequence as a route change.
func (c *Controller) UpdateDevices(inputID, outputID string) error {
	return c.do(func() error { return c.updateDevices(inputID, outputID) })
}

// Pause rendering, keeping the session and graph. Valid while Running;
// a no-op while Paused.
func (c *Controller) Pause() error {
	return c.do(c.pause)
}

// Resume after Pause, or after an interruption that ended without
// permission to resume. Valid while Paused; a no-op while Running.
func (c *Controller) Resume() error {
	return c.do(c.resume)
}

// Stop monitoring from any state and return to Idle.
//
// Any recording is finalized (its file is kept), and the graph, the session
// and the background task are released. Stopping twice, or stopping a
// controller that never started, does nothing.
func (c *Controller) Stop() error {
	return c.do(func() error {
		c.stop()
		return nil
	})
}

// Stop, then end the control loop. Every later call returns ErrClosed.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.Stop()
		close(c.quit)
		<-c.done
	})
}

func (c *Controller) State() State {
	var state State
	if err := c.do(func() error {
		state = c.state
		return nil
	}); err != nil {
		return Idle
	}
	return state
}

// After Close, the status is Idle with Closed set.
func (c *Controller) Status() Status {
	var status Status
	if err := c.do(func() error {
		status = c.status()
		return nil
	}); err != nil {
		return Status{State: Idle, Closed: true}
	}
	return status
}

func (c *Controller) ListInputs() []audiodevice.DeviceDescriptor {
	return c.catalog.ListInputs()
}

func (c *Controller) ListOutputs() []audiodevice.DeviceDescriptor {
	return c.catalog.ListOutputs()
}

// --------------------------------------------------------------------------------
// Control loop

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			c.stopMeterTicker()
			c.cancelRetry()
			return
		case command := <-c.commands:
			command()
		case event, ok := <-c.events:
			if !ok {
				c.events = nil
				continue
			}
			c.handleEvent(event)
		case <-c.meterC:
			c.pollMeter()
		}
	}
}

// Run fn on the control loop and wait for its result.
func (c *Controller) do(fn func() error) error {
	result := make(chan error, 1)
	select {
	case c.commands <- func() { result <- fn() }:
		return <-result
	case <-c.quit:
		return ErrClosed
	}
}

// Queue fn on the control loop without waiting. Used by timers.
func (c *Controller) post(fn func()) {
	select {
	case c.commands <- fn:
	case <-c.quit:
	}
}

func (c *Controller) setState(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.logger.Info("state changed", "from", from, "to", to)

	if to == Running {
		c.startMeterTicker()
	} else {
		c.stopMeterTicker()
	}
	c.listener.OnStateChanged(from, to)
}

func (c *Controller) status() Status {
	status := Status{
		State:           c.state,
		Config:          c.config,
		Session:         c.sessionState,
		RecoveryPending: c.retryPending,
	}
	if c.handle != nil {
		status.GraphID = c.handle.ID()
		status.DelaySeconds = c.handle.DelaySeconds()
	}
	if c.recording != nil {
		info := c.recording.Info()
		status.Recording = &info
	}
	return status
}

// --------------------------------------------------------------------------------
// Lifecycle

func (c *Controller) startMonitoring(config Config) error {
	switch c.state {
	case Idle:
	case Stopped:
		c.setState(Idle)
	default:
		return invalidState("start monitoring", c.state)
	}

	config.DelaySeconds = graph.ClampDelay(config.DelaySeconds)
	c.config = config
	c.setState(Building)

	end, err := c.background.Begin("delayed monitoring")
	if err != nil {
		c.logger.Warn("could not request background execution, continuing without", "err", err)
		end = nil
	}
	c.endBackground = end

	c.wantRunning = true
	if err := c.restore(true); err != nil {
		c.logger.Warn("could not start monitoring, rolling back", "err", err)
		c.teardown()
		c.setState(Idle)
		return err
	}
	c.setState(Running)
	return nil
}

func (c *Controller) stop() {
	c.teardown()
	c.setState(Idle)
}

// Release everything the controller holds, newest first. Safe to call when
// nothing is held.
func (c *Controller) teardown() {
	c.cancelRetry()
	c.wantRunning = false
	c.interrupted = false

	if c.recording != nil {
		c.finishRecording()
	}
	c.releaseHandle()
	if err := c.configurator.Release(); err != nil {
		c.logger.Warn("error while releasing session, continuing", "err", err)
	}
	if c.endBackground != nil {
		c.endBackground()
		c.endBackground = nil
	}
	c.meter.Reset()
	c.sessionState = session.State{}
}

// Start the current handle and make sure the meter and any recording are
// tapped into it.
func (c *Controller) startHandle() error {
	if err := c.graph.Start(c.handle); err != nil {
		return err
	}
	if c.tapped == c.handle {
		return nil
	}

	c.meter.Reset()
	if _, err := c.handle.InstallTap(c.meter.Tap); err != nil {
		c.graph.Pause(c.handle)
		return err
	}
	c.tapped = c.handle

	if c.recording != nil && c.recording.Active() {
		if err := c.recorder.Rebind(c.recording, c.handle); err != nil {
			c.logger.Warn("could not move recording to rebuilt graph", "err", err)
			c.listener.OnError(err)
			c.listener.OnRecordingChanged(c.recording.Info())
		}
	}
	return nil
}

func (c *Controller) graphConfig() graph.Config {
	return graph.Config{
		DelaySeconds:   c.config.DelaySeconds,
		InputDeviceID:  c.config.PreferredInputID,
		OutputDeviceID: c.config.PreferredOutputID,
	}
}

func formatFor(state session.State) graph.Format {
	return graph.Format{
		Input:           state.InputFormat,
		Output:          state.OutputFormat,
		FramesPerBuffer: int(math.Round(state.BufferDuration.Seconds() * float64(state.InputFormat.SampleRate))),
	}
}

// --------------------------------------------------------------------------------
// Parameters and user pause

func (c *Controller) updateDelay(seconds float64) error {
	if c.state != Running && c.state != Paused {
		return invalidState("update delay", c.state)
	}
	applied := graph.ClampDelay(seconds)
	if c.handle != nil {
		var err error
		if applied, err = c.graph.SetDelay(c.handle, seconds); err != nil {
			return err
		}
	}
	c.config.DelaySeconds = applied
	return nil
}

func (c *Controller) updateDevices(inputID, outputID string) error {
	if c.state != Running && c.state != Paused {
		return invalidState("update devices", c.state)
	}
	c.config.PreferredInputID = inputID
	c.config.PreferredOutputID = outputID
	return c.recover("devices changed", true)
}

func (c *Controller) pause() error {
	switch c.state {
	case Paused:
		// A pending retry may still rebuild, but must not restart.
		c.wantRunning = false
		c.interrupted = false
		return nil
	case Running:
	default:
		return invalidState("pause", c.state)
	}
	c.wantRunning = false
	c.interrupted = false
	if err := c.graph.Pause(c.handle); err != nil {
		return err
	}
	c.setState(Paused)
	return nil
}

func (c *Controller) resume() error {
	switch c.state {
	case Running:
		return nil
	case Paused:
	default:
		return invalidState("resume", c.state)
	}
	c.wantRunning = true
	c.interrupted = false
	return c.recover("resumed", false)
}

// --------------------------------------------------------------------------------
// Metering

func (c *Controller) startMeterTicker() {
	if c.meterTicker != nil {
		return
	}
	c.meterTicker = time.NewTicker(c.options.MeterInterval)
	c.meterC = c.meterTicker.C
}

func (c *Controller) stopMeterTicker() {
	if c.meterTicker == nil {
		return
	}
	c.meterTicker.Stop()
	c.meterTicker = nil
	c.meterC = nil
}

// Forward the latest level, and surface recording write failures the audio
// thread has counted since the last poll.
func (c *Controller) pollMeter() {
	if sample, ok := c.meter.Latest(); ok {
		c.listener.OnLevel(sample)
	}

	if c.recording == nil {
		return
	}
	info := c.recording.Info()
	if info.WriteErrors != c.reportedWriteErr {
		c.reportedWriteErr = info.WriteErrors
		c.logger.Warn("recording write failures", "count", info.WriteErrors, "err", info.LastError)
		c.listener.OnError(&recorder.RecordingIOError{Op: "write", Path: info.Path, Err: info.LastError})
	}
}
