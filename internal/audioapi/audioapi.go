package audioapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/audiodevice"
)

var (
	ErrNoDefaultDevice = errors.New("no default device available")
	ErrNoDeviceWithID  = errors.New("no device with specified ID")
)

type AudioIODevice struct {
	// The ID of the device
	//
	// Should come from the underlying API (PortAudio, a platform session, ...),
	// and must stay stable across enumerations of the same hardware.
	//
	// This is the canonical way to reference the AudioIODevice, e.g. when
	// asking the session to prefer a device as the input or output.
	ID string

	// A human-readable name for the device, if one exists.
	// Not canonical.
	Name string

	Kind audiodevice.DeviceKind

	// The native properties (sample rate and channels) of this device.
	DeviceProperties audiodevice.DeviceProperties

	// Whether the API reports this device as the system default for its direction.
	IsDefault bool
}

func (device AudioIODevice) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "ID:          %s\n", device.ID)
	fmt.Fprintf(&sb, "Name:        %s\n", device.Name)
	fmt.Fprintf(&sb, "Kind:        %s\n", device.Kind)
	fmt.Fprintf(&sb, "SampleRate:  %d\n", device.DeviceProperties.SampleRate)
	fmt.Fprintf(&sb, "NumChannels: %d\n", device.DeviceProperties.NumChannels)
	fmt.Fprintf(&sb, "Default:     %t\n", device.IsDefault)
	return sb.String()
}

func (device AudioIODevice) Descriptor() audiodevice.DeviceDescriptor {
	return audiodevice.DeviceDescriptor{
		ID:          device.ID,
		DisplayName: device.Name,
		Kind:        device.Kind,
	}
}

// Define an API to query hardware devices.
//
// Implementations are thin wrappers around a host audio API (PortAudio) or
// a platform session. Errors are returned as-is; callers that must never fail
// should go through a Catalog instead.
type AudioIODeviceAPI interface {
	InputDevices() ([]AudioIODevice, error)
	OutputDevices() ([]AudioIODevice, error)
}

// Find the device with the given ID in a device list.
func FindByID(devices []AudioIODevice, id string) (AudioIODevice, error) {
	for _, d := range devices {
		if d.ID == id {
			return d, nil
		}
	}
	return AudioIODevice{}, fmt.Errorf("%w: %q", ErrNoDeviceWithID, id)
}

// Find the device flagged as default in a device list.
// Falls back to the first device when the API does not flag one.
func FindDefault(devices []AudioIODevice) (AudioIODevice, error) {
	for _, d := range devices {
		if d.IsDefault {
			return d, nil
		}
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return AudioIODevice{}, ErrNoDefaultDevice
}
