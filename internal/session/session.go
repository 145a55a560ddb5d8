package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/audiodevice"
)

var (
	ErrCategoryRejected       = errors.New("session category rejected")
	ErrEndpointNotSelectable  = errors.New("endpoint not selectable")
	ErrActivationRejected     = errors.New("session activation rejected")
	ErrBufferDurationRejected = errors.New("buffer duration negotiation rejected")
)

// A ConfigError reports a failed session negotiation.
// These are recoverable: the user may pick other devices and try again.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// --------------------------------------------------------------------------------

type Category int

const (
	// Concurrent input and output.
	CategoryPlayAndRecord Category = iota
)

func (c Category) String() string {
	if c == CategoryPlayAndRecord {
		return "PlayAndRecord"
	}
	return "Unknown"
}

// Routing options requested along with the category.
type RouteOptions uint8

const (
	AllowBluetooth RouteOptions = 1 << iota
	AllowBluetoothLE
	AllowAirPlay
	DefaultToSpeaker
	MixWithOthers
)

func (o RouteOptions) Has(option RouteOptions) bool {
	return o&option == option
}

func (o RouteOptions) String() string {
	names := []struct {
		option RouteOptions
		name   string
	}{
		{AllowBluetooth, "allowBluetooth"},
		{AllowBluetoothLE, "allowBluetoothLE"},
		{AllowAirPlay, "allowAirPlay"},
		{DefaultToSpeaker, "defaultToSpeaker"},
		{MixWithOthers, "mixWithOthers"},
	}
	var parts []string
	for _, n := range names {
		if o.Has(n.option) {
			parts = append(parts, n.name)
		}
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// The route the OS actually granted.
type Route struct {
	Input  audiodevice.DeviceDescriptor
	Output audiodevice.DeviceDescriptor

	InputFormat  audiodevice.DeviceProperties
	OutputFormat audiodevice.DeviceProperties

	BufferDuration time.Duration
}

// The session as last reported by the OS.
type State struct {
	IsActive        bool
	CurrentInputID  string
	CurrentOutputID string
	BufferDuration  time.Duration

	InputFormat  audiodevice.DeviceProperties
	OutputFormat audiodevice.DeviceProperties
}

func stateFromRoute(active bool, route Route) State {
	return State{
		IsActive:        active,
		CurrentInputID:  route.Input.ID,
		CurrentOutputID: route.Output.ID,
		BufferDuration:  route.BufferDuration,
		InputFormat:     route.InputFormat,
		OutputFormat:    route.OutputFormat,
	}
}

// --------------------------------------------------------------------------------

// The OS audio session.
//
// Implementations wrap whatever the host offers; events must be delivered on
// the channel returned by Events, which stays open for the Platform's lifetime.
type Platform interface {
	SetCategory(category Category, options RouteOptions) error
	// Empty means the system default.
	SetPreferredInput(id string) error
	// Empty means the system default.
	SetPreferredOutput(id string) error
	SetPreferredBufferDuration(d time.Duration) error

	Activate() error
	Deactivate() error

	CurrentRoute() Route
	Events() <-chan Event
}
