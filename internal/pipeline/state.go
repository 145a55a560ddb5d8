package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/meter"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/recorder"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/session"
	"github.com/google/uuid"
)

var (
	ErrInvalidState = errors.New("operation not valid in current state")
	// Restarting after a route change failed twice. Monitoring is stopped
	// until the user starts it again.
	ErrRecoveryExhausted = errors.New("route change recovery exhausted")
	ErrClosed            = errors.New("controller closed")
)

func invalidState(op string, state State) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidState, op, state)
}

// The controller's lifecycle.
//
//	Idle -> Building -> Running <-> Paused
//	Running/Paused -> Stopped (recovery exhausted)
//	any -> Idle (Stop)
type State int

const (
	Idle State = iota
	Building
	Running
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Building:
		return "Building"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// What the user asked for. Only the control loop mutates it.
type Config struct {
	// In [0, 5]; clamped when applied.
	DelaySeconds float64

	// Empty means the system default.
	PreferredInputID  string
	PreferredOutputID string
}

// How to react to a route change.
type RoutePolicy int

const (
	// Rebuild on every route change, whatever the reason.
	RecoverAlways RoutePolicy = iota
	// Ignore NewDeviceAvailable while the current route is still listed.
	RecoverRelevant
)

func (p RoutePolicy) String() string {
	if p == RecoverRelevant {
		return "relevant"
	}
	return "always"
}

func ParseRoutePolicy(s string) (RoutePolicy, error) {
	switch s {
	case "", "always":
		return RecoverAlways, nil
	case "relevant":
		return RecoverRelevant, nil
	default:
		return RecoverAlways, fmt.Errorf("unknown route policy %q", s)
	}
}

// A snapshot of the controller, for display.
type Status struct {
	State           State
	Config          Config
	Session         session.State
	GraphID         uuid.UUID
	DelaySeconds    float64
	Recording       *recorder.Info
	RecoveryPending bool
	Closed          bool
}

// --------------------------------------------------------------------------------

// Outward notifications. Every method is called on the control loop, one at
// a time; implementations must return quickly and must not call back into
// the Controller synchronously.
type Listener interface {
	OnStateChanged(from, to State)
	OnLevel(sample meter.LevelSample)
	OnRecordingChanged(info recorder.Info)
	OnError(err error)
}

// Embed NopListener to implement only some of Listener.
type NopListener struct{}

func (NopListener) OnStateChanged(from, to State)         {}
func (NopListener) OnLevel(sample meter.LevelSample)      {}
func (NopListener) OnRecordingChanged(info recorder.Info) {}
func (NopListener) OnError(err error)                     {}

// Keeps the process running while monitoring, where the OS would otherwise
// suspend it. Begin returns a function that ends the request; the
// controller calls it exactly once.
type BackgroundTasks interface {
	Begin(name string) (end func(), err error)
}

type noBackground struct{}

func (noBackground) Begin(string) (func(), error) {
	return func() {}, nil
}

// --------------------------------------------------------------------------------

const (
	DefaultRetryDelay    = 500 * time.Millisecond
	DefaultMeterInterval = 50 * time.Millisecond
)

type Options struct {
	// How long to wait before the single retry of a failed recovery.
	RetryDelay time.Duration
	// How often level readings are forwarded to the listener while running.
	MeterInterval time.Duration

	RoutePolicy         RoutePolicy
	RecordingsDirectory string
	Session             session.Options

	// May be nil.
	Listener Listener
}

func (o Options) withDefaults() Options {
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.MeterInterval <= 0 {
		o.MeterInterval = DefaultMeterInterval
	}
	if o.Listener == nil {
		o.Listener = NopListener{}
	}
	return o
}
