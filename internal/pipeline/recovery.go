package pipeline

import (
	"fmt"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/graph"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/session"
)

func (c *Controller) handleEvent(event session.Event) {
	for event != nil {
		var next session.Event
		switch e := event.(type) {
		case session.RouteChanged:
			var latest session.RouteChanged
			latest, next = c.coalesceRouteChanges(e)
			c.onRouteChanged(latest)
		case session.Interrupted:
			c.onInterrupted(e)
		default:
			c.logger.Warn("unknown session event", "event", event)
		}
		event = next
	}
}

// Drain route changes that are already queued behind latest; only the newest
// one is acted on. Stops at the first event of another kind and returns it.
func (c *Controller) coalesceRouteChanges(latest session.RouteChanged) (session.RouteChanged, session.Event) {
	for {
		select {
		case event, ok := <-c.events:
			if !ok {
				c.events = nil
				return latest, nil
			}
			route, isRoute := event.(session.RouteChanged)
			if !isRoute {
				return latest, event
			}
			c.logger.Debug("route change superseded", "superseded", latest, "by", route)
			latest = route
		default:
			return latest, nil
		}
	}
}

func (c *Controller) onRouteChanged(event session.RouteChanged) {
	logger := c.logger.With("event", event)
	if c.state != Running && c.state != Paused {
		logger.Debug("ignoring route change", "state", c.state)
		return
	}
	if c.options.RoutePolicy == RecoverRelevant &&
		event.Reason == session.ReasonNewDeviceAvailable &&
		!c.retryPending &&
		c.routeIntact() {
		logger.Info("ignoring new device, current route intact")
		return
	}
	c.recover("route changed: "+event.Reason.String(), true)
}

func (c *Controller) onInterrupted(event session.Interrupted) {
	logger := c.logger.With("event", event)
	if c.state != Running && c.state != Paused {
		logger.Debug("ignoring interruption", "state", c.state)
		return
	}

	if event.Phase == session.InterruptionBegan {
		c.cancelRetry()
		c.generation++
		if c.wantRunning {
			c.interrupted = true
		}
		c.wantRunning = false
		if err := c.graph.Pause(c.handle); err != nil {
			logger.Warn("error while pausing for interruption", "err", err)
		}
		c.setState(Paused)
		return
	}

	if !c.interrupted {
		logger.Debug("interruption ended, nothing was interrupted")
		return
	}
	c.interrupted = false
	if !event.ShouldResume {
		logger.Info("interruption ended without resume, staying paused")
		return
	}
	c.wantRunning = true
	c.recover("interruption ended", false)
}

// Whether the devices the user explicitly chose are still present.
// System defaults always count as present.
func (c *Controller) routeIntact() bool {
	if id := c.config.PreferredInputID; id != "" {
		if _, ok := c.catalog.FindInput(id); !ok {
			return false
		}
	}
	if id := c.config.PreferredOutputID; id != "" {
		if _, ok := c.catalog.FindOutput(id); !ok {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------------

// Bring the pipeline back after something changed underneath it.
//
// A new recovery always supersedes one that is waiting to retry. If the first
// attempt fails, one retry is scheduled after RetryDelay; if that fails too,
// the controller releases everything and moves to Stopped.
//
// Returns the error of the first attempt.
func (c *Controller) recover(reason string, rebuild bool) error {
	c.cancelRetry()
	c.generation++
	generation := c.generation
	logger := c.logger.With("reason", reason, "generation", generation)

	logger.Info("recovering", "rebuild", rebuild)
	err := c.restore(rebuild)
	if err == nil {
		logger.Info("recovered", "state", c.state)
		return nil
	}

	logger.Warn("recovery failed, retrying once", "err", err, "retryDelay", c.options.RetryDelay)
	c.retryPending = true
	c.retryTimer = time.AfterFunc(c.options.RetryDelay, func() {
		c.post(func() { c.retry(generation, reason) })
	})
	return err
}

func (c *Controller) retry(generation uint64, reason string) {
	logger := c.logger.With("reason", reason, "generation", generation)
	if generation != c.generation || !c.retryPending {
		logger.Debug("dropping superseded retry", "current", c.generation)
		return
	}
	c.retryPending = false
	c.retryTimer = nil

	if err := c.restore(true); err != nil {
		logger.Error("recovery failed after retry, stopping", "err", err)
		c.teardown()
		c.setState(Stopped)
		c.listener.OnError(fmt.Errorf("%w: %w", ErrRecoveryExhausted, err))
		return
	}
	logger.Info("recovered on retry", "state", c.state)
}

func (c *Controller) cancelRetry() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.retryPending = false
}

// Pause, reconfigure the session, rebuild the graph if asked to (or if the
// negotiated format changed), and restart if the controller wants to be
// running.
//
// The old handle is always released before a new one is built.
func (c *Controller) restore(rebuild bool) error {
	if c.handle != nil {
		if err := c.graph.Pause(c.handle); err != nil {
			c.logger.Warn("error while pausing graph", "err", err)
		}
	}
	if c.state == Running {
		c.setState(Paused)
	}

	state, err := c.configurator.Configure(c.config.PreferredInputID, c.config.PreferredOutputID)
	if err != nil {
		return err
	}
	c.sessionState = state

	format := formatFor(state)
	if rebuild || c.handle == nil || c.handle.Released() || !sameFormat(c.handle.Format(), format) {
		c.releaseHandle()
		handle, err := c.graph.Build(c.graphConfig(), format)
		if err != nil {
			return err
		}
		c.handle = handle
	}

	if !c.wantRunning {
		return nil
	}
	if err := c.startHandle(); err != nil {
		return err
	}
	c.setState(Running)
	return nil
}

func (c *Controller) releaseHandle() {
	if c.handle == nil {
		return
	}
	if err := c.graph.Stop(c.handle); err != nil {
		c.logger.Warn("error while releasing graph", "err", err)
	}
	c.handle = nil
	c.tapped = nil
}

// Whether a handle built for built can serve negotiated without a rebuild.
// Output sample rate is ignored; the graph always runs the output at the
// input rate.
func sameFormat(built, negotiated graph.Format) bool {
	return built.Input == negotiated.Input &&
		built.Output.NumChannels == negotiated.Output.NumChannels &&
		built.FramesPerBuffer == negotiated.FramesPerBuffer
}
