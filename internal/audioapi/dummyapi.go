package audioapi

import (
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/audiodevice"
)

// A dummy API that starts out listing one input and one output device:
// - "dummy-input", a built-in microphone
// - "dummy-output", a built-in speaker
//
// The device lists can be replaced at any time, and an error can be injected,
// to simulate hardware being plugged in or the host API going away.
//
// This API is intended to be used in testing only!
type DummyAudioIODeviceAPI struct {
	mu      sync.Mutex
	inputs  []AudioIODevice
	outputs []AudioIODevice
	err     error
}

func NewDummyAudioIODeviceAPI(properties audiodevice.DeviceProperties) *DummyAudioIODeviceAPI {
	return &DummyAudioIODeviceAPI{
		inputs: []AudioIODevice{
			{
				ID:               "dummy-input",
				Name:             "DummyInput",
				Kind:             audiodevice.KindMicrophone,
				DeviceProperties: properties,
				IsDefault:        true,
			},
		},
		outputs: []AudioIODevice{
			{
				ID:               "dummy-output",
				Name:             "DummyOutput",
				Kind:             audiodevice.KindBuiltInSpeaker,
				DeviceProperties: properties,
				IsDefault:        true,
			},
		},
	}
}

func (api *DummyAudioIODeviceAPI) InputDevices() ([]AudioIODevice, error) {
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.err != nil {
		return nil, api.err
	}
	return append([]AudioIODevice(nil), api.inputs...), nil
}

func (api *DummyAudioIODeviceAPI) OutputDevices() ([]AudioIODevice, error) {
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.err != nil {
		return nil, api.err
	}
	return append([]AudioIODevice(nil), api.outputs...), nil
}

func (api *DummyAudioIODeviceAPI) SetInputs(devices ...AudioIODevice) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.inputs = devices
}

func (api *DummyAudioIODeviceAPI) SetOutputs(devices ...AudioIODevice) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.outputs = devices
}

// Make every following query fail with err, or succeed again if err is nil.
func (api *DummyAudioIODeviceAPI) SetError(err error) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.err = err
}
