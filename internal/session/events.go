package session

import "fmt"

// An Event is either a RouteChanged or an Interrupted.
type Event interface {
	isSessionEvent()
}

type RouteChangeReason int

const (
	ReasonOther RouteChangeReason = iota
	ReasonDeviceUnavailable
	ReasonNewDeviceAvailable
	ReasonConfigurationChange
)

func (r RouteChangeReason) String() string {
	switch r {
	case ReasonDeviceUnavailable:
		return "DeviceUnavailable"
	case ReasonNewDeviceAvailable:
		return "NewDeviceAvailable"
	case ReasonConfigurationChange:
		return "ConfigurationChange"
	default:
		return "Other"
	}
}

type RouteChanged struct {
	Reason RouteChangeReason
}

func (RouteChanged) isSessionEvent() {}

func (e RouteChanged) String() string {
	return fmt.Sprintf("RouteChanged(%s)", e.Reason)
}

type InterruptionPhase int

const (
	InterruptionBegan InterruptionPhase = iota
	InterruptionEnded
)

func (p InterruptionPhase) String() string {
	if p == InterruptionBegan {
		return "Began"
	}
	return "Ended"
}

// ShouldResume is only meaningful when Phase is InterruptionEnded.
type Interrupted struct {
	Phase        InterruptionPhase
	ShouldResume bool
}

func (Interrupted) isSessionEvent() {}

func (e Interrupted) String() string {
	if e.Phase == InterruptionBegan {
		return "Interrupted(Began)"
	}
	return fmt.Sprintf("Interrupted(Ended, shouldResume=%t)", e.ShouldResume)
}
