package portaudioapi

import (
	"testing"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/audiodevice"
	"github.com/gordonklaus/portaudio"
)

func TestToAudioIODevice(t *testing.T) {
	t.Parallel()

	hostApi := &portaudio.HostApiInfo{Name: "Core Audio"}
	mic := &portaudio.DeviceInfo{
		Name:              "MacBook Pro Microphone",
		MaxInputChannels:  1,
		DefaultSampleRate: 48000,
		HostApi:           hostApi,
	}
	interfaceDevice := &portaudio.DeviceInfo{
		Name:              "Scarlett 18i20 USB",
		MaxInputChannels:  18,
		MaxOutputChannels: 20,
		DefaultSampleRate: 96000,
		HostApi:           hostApi,
	}
	hostApi.DefaultInputDevice = mic
	hostApi.DefaultOutputDevice = interfaceDevice

	tests := []struct {
		name   string
		device *portaudio.DeviceInfo
		input  bool
		wantID string
		kind   audiodevice.DeviceKind
		format audiodevice.DeviceProperties
		isDef  bool
	}{
		{"default mic", mic, true, "Core Audio:MacBook Pro Microphone", audiodevice.KindMicrophone, audiodevice.DeviceProperties{SampleRate: 48000, NumChannels: 1}, true},
		{"interface as input", interfaceDevice, true, "Core Audio:Scarlett 18i20 USB", audiodevice.KindUSB, audiodevice.DeviceProperties{SampleRate: 96000, NumChannels: 2}, false},
		{"interface as output", interfaceDevice, false, "Core Audio:Scarlett 18i20 USB", audiodevice.KindUSB, audiodevice.DeviceProperties{SampleRate: 96000, NumChannels: 2}, true},
	}

	for _, tt := range tests {
		got := toAudioIODevice(tt.device, tt.input)
		if got.ID != tt.wantID {
			t.Errorf("%s: ID = %q, want %q", tt.name, got.ID, tt.wantID)
		}
		if got.Kind != tt.kind {
			t.Errorf("%s: Kind = %v, want %v", tt.name, got.Kind, tt.kind)
		}
		if got.DeviceProperties != tt.format {
			t.Errorf("%s: DeviceProperties = %v, want %v", tt.name, got.DeviceProperties, tt.format)
		}
		if got.IsDefault != tt.isDef {
			t.Errorf("%s: IsDefault = %v, want %v", tt.name, got.IsDefault, tt.isDef)
		}
	}
}

func TestDeviceIDWithoutHostApi(t *testing.T) {
	t.Parallel()
	if got := deviceID(&portaudio.DeviceInfo{Name: "loopback"}); got != "loopback" {
		t.Errorf("deviceID() = %q, want %q", got, "loopback")
	}
}
