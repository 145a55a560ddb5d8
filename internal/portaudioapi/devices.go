package portaudioapi

import (
	"log/slog"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/audiodevice"
	"github.com/gordonklaus/portaudio"
	"github.com/google/uuid"
)

// Processing is mono and the output is at most stereo, so never open more
// channels than this.
const maxChannels = 2

// DeviceAPI lists PortAudio devices as AudioIODevices.
//
// Device IDs are "<host api>:<device name>", which survive re-enumeration
// where PortAudio's indices do not.
type DeviceAPI struct {
	logger *slog.Logger
}

// Create a new DeviceAPI, initializing PortAudio. Call Close when done.
// If logger is nil, slog.Default() is used.
func NewDeviceAPI(logger *slog.Logger) (*DeviceAPI, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("portaudio device api uuid", uuid.New())
	if err := acquireHost(); err != nil {
		logger.Error("failed to create portaudio device api", "err", err)
		return nil, err
	}
	return &DeviceAPI{logger: logger}, nil
}

func (api *DeviceAPI) Close() error {
	return releaseHost()
}

// Filters PortAudio devices to get only input
func (api *DeviceAPI) InputDevices() ([]audioapi.AudioIODevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		api.logger.Error("failed to enumerate devices", "err", err)
		return nil, err
	}

	inputDevices := make([]audioapi.AudioIODevice, 0)
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			inputDevices = append(inputDevices, toAudioIODevice(d, true))
		}
	}
	return inputDevices, nil
}

// Filters PortAudio devices to get only output
func (api *DeviceAPI) OutputDevices() ([]audioapi.AudioIODevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		api.logger.Error("failed to enumerate devices", "err", err)
		return nil, err
	}

	outputDevices := make([]audioapi.AudioIODevice, 0)
	for _, d := range devices {
		if d.MaxOutputChannels > 0 {
			outputDevices = append(outputDevices, toAudioIODevice(d, false))
		}
	}
	return outputDevices, nil
}

func deviceID(d *portaudio.DeviceInfo) string {
	if d.HostApi == nil {
		return d.Name
	}
	return d.HostApi.Name + ":" + d.Name
}

func toAudioIODevice(d *portaudio.DeviceInfo, input bool) audioapi.AudioIODevice {
	channels := d.MaxOutputChannels
	var hostDefault *portaudio.DeviceInfo
	if d.HostApi != nil {
		hostDefault = d.HostApi.DefaultOutputDevice
		if input {
			hostDefault = d.HostApi.DefaultInputDevice
		}
	}
	if input {
		channels = d.MaxInputChannels
	}
	return audioapi.AudioIODevice{
		ID:   deviceID(d),
		Name: d.Name,
		Kind: audiodevice.KindFromName(d.Name, input),
		DeviceProperties: audiodevice.DeviceProperties{
			SampleRate:  int(d.DefaultSampleRate),
			NumChannels: min(channels, maxChannels),
		},
		IsDefault: hostDefault != nil && hostDefault.Name == d.Name,
	}
}

// Find a device by ID, or the default device of the default host API when id
// is empty.
func lookupDevice(id string, input bool) (*portaudio.DeviceInfo, error) {
	if id == "" {
		var (
			d   *portaudio.DeviceInfo
			err error
		)
		if input {
			d, err = portaudio.DefaultInputDevice()
		} else {
			d, err = portaudio.DefaultOutputDevice()
		}
		if err != nil || d == nil {
			return nil, audioapi.ErrNoDefaultDevice
		}
		return d, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if deviceID(d) != id {
			continue
		}
		if (input && d.MaxInputChannels > 0) || (!input && d.MaxOutputChannels > 0) {
			return d, nil
		}
	}
	return nil, audioapi.ErrNoDeviceWithID
}
