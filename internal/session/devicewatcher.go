package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/audioapi"
)

// A DeviceWatcher turns changes in the device lists of an AudioIODeviceAPI
// into RouteChanged events, for hosts that do not notify on their own.
type DeviceWatcher struct {
	logger   *slog.Logger
	api      audioapi.AudioIODeviceAPI
	interval time.Duration

	known map[string]struct{}
}

// If logger is nil, slog.Default() is used.
func NewDeviceWatcher(api audioapi.AudioIODeviceAPI, interval time.Duration, logger *slog.Logger) *DeviceWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceWatcher{
		logger:   logger,
		api:      api,
		interval: interval,
	}
}

// Poll until ctx is done, sending an event whenever the device set changes.
// Sends never block; if events is full the event is dropped, since a
// pending route change already leads to the same recovery.
func (w *DeviceWatcher) Run(ctx context.Context, events chan<- Event) {
	w.Poll()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			event, changed := w.Poll()
			if !changed {
				continue
			}
			select {
			case events <- event:
			default:
				w.logger.Warn("session event buffer full, dropping event", "event", event)
			}
		}
	}
}

// Compare the current device set with the previous one.
//
// The first call only records the set. A removal wins over an addition when
// both happened since the last poll. Enumeration errors report no change.
func (w *DeviceWatcher) Poll() (RouteChanged, bool) {
	current, err := w.snapshot()
	if err != nil {
		w.logger.Debug("could not enumerate devices", "err", err)
		return RouteChanged{}, false
	}
	previous := w.known
	w.known = current
	if previous == nil {
		return RouteChanged{}, false
	}

	for id := range previous {
		if _, ok := current[id]; !ok {
			w.logger.Debug("device disappeared", "device", id)
			return RouteChanged{Reason: ReasonDeviceUnavailable}, true
		}
	}
	for id := range current {
		if _, ok := previous[id]; !ok {
			w.logger.Debug("device appeared", "device", id)
			return RouteChanged{Reason: ReasonNewDeviceAvailable}, true
		}
	}
	return RouteChanged{}, false
}

func (w *DeviceWatcher) snapshot() (map[string]struct{}, error) {
	inputs, err := w.api.InputDevices()
	if err != nil {
		return nil, err
	}
	outputs, err := w.api.OutputDevices()
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(inputs)+len(outputs))
	for _, d := range inputs {
		set["in:"+d.ID] = struct{}{}
	}
	for _, d := range outputs {
		set["out:"+d.ID] = struct{}{}
	}
	return set, nil
}
