package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/audiotest"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/session"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/audiodevice"
)

var format = audiodevice.DeviceProperties{SampleRate: 48000, NumChannels: 1}

func newCatalog() *audioapi.Catalog {
	api := audioapi.NewDummyAudioIODeviceAPI(format)
	api.SetOutputs(
		audioapi.AudioIODevice{ID: "speaker", Name: "Speaker", Kind: audiodevice.KindBuiltInSpeaker, DeviceProperties: format},
		audioapi.AudioIODevice{ID: "headphones", Name: "Headphones", Kind: audiodevice.KindWiredHeadphones, DeviceProperties: format},
	)
	return audioapi.NewCatalog(api, nil)
}

func TestConfigureDefaultToSpeaker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
		want   bool
	}{
		{"system default output", "", true},
		{"built-in speaker", "speaker", true},
		{"wired headphones", "headphones", false},
		{"unknown output", "bluetooth-42", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			platform := audiotest.NewFakePlatform(format)
			c := session.NewConfigurator(platform, newCatalog(), session.Options{}, nil)

			if _, err := c.Configure("", tt.output); err != nil {
				t.Fatalf("Configure() error = %v, want nil", err)
			}
			options := platform.Options()
			if got := options.Has(session.DefaultToSpeaker); got != tt.want {
				t.Errorf("options %v: DefaultToSpeaker = %v, want %v", options, got, tt.want)
			}
			for _, always := range []session.RouteOptions{session.AllowBluetooth, session.AllowBluetoothLE, session.AllowAirPlay} {
				if !options.Has(always) {
					t.Errorf("options %v missing %v", options, always)
				}
			}
			if options.Has(session.MixWithOthers) {
				t.Errorf("options %v has MixWithOthers, want it off by default", options)
			}
		})
	}
}

func TestConfigureMixWithOthers(t *testing.T) {
	t.Parallel()
	platform := audiotest.NewFakePlatform(format)
	c := session.NewConfigurator(platform, nil, session.Options{MixWithOthers: true}, nil)

	if _, err := c.Configure("", ""); err != nil {
		t.Fatalf("Configure() error = %v, want nil", err)
	}
	if !platform.Options().Has(session.MixWithOthers) {
		t.Errorf("options %v missing MixWithOthers", platform.Options())
	}
}

func TestConfigureReportsGrantedBuffer(t *testing.T) {
	t.Parallel()
	platform := audiotest.NewFakePlatform(format)
	platform.GrantMinimumBuffer(23 * time.Millisecond)
	c := session.NewConfigurator(platform, nil, session.Options{}, nil)

	state, err := c.Configure("usb-mic", "")
	if err != nil {
		t.Fatalf("Configure() error = %v, want nil", err)
	}
	if platform.RequestedBuffer() != session.DefaultBufferDuration {
		t.Errorf("requested buffer = %v, want %v", platform.RequestedBuffer(), session.DefaultBufferDuration)
	}
	if state.BufferDuration != 23*time.Millisecond {
		t.Errorf("State.BufferDuration = %v, want %v", state.BufferDuration, 23*time.Millisecond)
	}
	if !state.IsActive || state.CurrentInputID != "usb-mic" || state.CurrentOutputID != audiotest.DefaultOutputID {
		t.Errorf("Configure() state = %+v", state)
	}
	if state.InputFormat != format {
		t.Errorf("State.InputFormat = %v, want %v", state.InputFormat, format)
	}
	if c.State() != state {
		t.Errorf("State() = %+v, want %+v", c.State(), state)
	}
}

func TestConfigureErrors(t *testing.T) {
	t.Parallel()
	cause := errors.New("refused")

	tests := []struct {
		name   string
		inject func(p *audiotest.FakePlatform)
		input  string
		want   error
	}{
		{"category", func(p *audiotest.FakePlatform) { p.FailCategory(cause) }, "", session.ErrCategoryRejected},
		{"input", func(p *audiotest.FakePlatform) { p.MakeUnselectable("usb-mic") }, "usb-mic", session.ErrEndpointNotSelectable},
		{"buffer duration", func(p *audiotest.FakePlatform) { p.FailBufferDuration(cause) }, "", session.ErrBufferDurationRejected},
		{"activation", func(p *audiotest.FakePlatform) { p.FailActivate(cause) }, "", session.ErrActivationRejected},
		{"no input format", func(p *audiotest.FakePlatform) {
			p.SetFormats(audiodevice.DeviceProperties{}, format)
		}, "", session.ErrActivationRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			platform := audiotest.NewFakePlatform(format)
			tt.inject(platform)
			c := session.NewConfigurator(platform, nil, session.Options{}, nil)

			_, err := c.Configure(tt.input, "")
			var configErr *session.ConfigError
			if !errors.As(err, &configErr) {
				t.Fatalf("Configure() error = %v, want *session.ConfigError", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Configure() error = %v, want %v", err, tt.want)
			}
			if c.Active() || platform.Active() {
				t.Error("session left active after failed Configure")
			}
			if a, d := platform.Activations(), platform.Deactivations(); a != d {
				t.Errorf("activations = %d, deactivations = %d, want equal", a, d)
			}
		})
	}
}

func TestFailedReconfigureDeactivates(t *testing.T) {
	t.Parallel()
	platform := audiotest.NewFakePlatform(format)
	c := session.NewConfigurator(platform, nil, session.Options{}, nil)

	if _, err := c.Configure("", ""); err != nil {
		t.Fatalf("Configure() error = %v, want nil", err)
	}
	platform.MakeUnselectable("gone")
	if _, err := c.Configure("gone", ""); !errors.Is(err, session.ErrEndpointNotSelectable) {
		t.Fatalf("Configure() error = %v, want %v", err, session.ErrEndpointNotSelectable)
	}
	if platform.Active() || platform.Deactivations() != 1 {
		t.Errorf("platform active = %v, deactivations = %d, want false and 1", platform.Active(), platform.Deactivations())
	}
	if err := c.Release(); err != nil {
		t.Errorf("Release() error = %v, want nil", err)
	}
	if platform.Deactivations() != 1 {
		t.Errorf("Release() after failure deactivated again")
	}
}

func TestReconfigureKeepsActivation(t *testing.T) {
	t.Parallel()
	platform := audiotest.NewFakePlatform(format)
	c := session.NewConfigurator(platform, nil, session.Options{}, nil)

	for range 3 {
		if _, err := c.Configure("", ""); err != nil {
			t.Fatalf("Configure() error = %v, want nil", err)
		}
	}
	if platform.Activations() != 1 {
		t.Errorf("platform.Activations() = %d, want 1", platform.Activations())
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()
	platform := audiotest.NewFakePlatform(format)
	c := session.NewConfigurator(platform, nil, session.Options{}, nil)

	if err := c.Release(); err != nil {
		t.Fatalf("Release() before Configure error = %v, want nil", err)
	}
	if _, err := c.Configure("", ""); err != nil {
		t.Fatalf("Configure() error = %v, want nil", err)
	}
	for range 3 {
		if err := c.Release(); err != nil {
			t.Fatalf("Release() error = %v, want nil", err)
		}
	}
	if platform.Deactivations() != 1 {
		t.Errorf("platform.Deactivations() = %d, want 1", platform.Deactivations())
	}
	if c.State().IsActive {
		t.Error("State().IsActive after Release")
	}
}

func TestReleaseReportsDeactivationError(t *testing.T) {
	t.Parallel()
	platform := audiotest.NewFakePlatform(format)
	platform.FailDeactivate(errors.New("still in use"))
	c := session.NewConfigurator(platform, nil, session.Options{}, nil)

	if _, err := c.Configure("", ""); err != nil {
		t.Fatalf("Configure() error = %v, want nil", err)
	}
	var configErr *session.ConfigError
	if err := c.Release(); !errors.As(err, &configErr) {
		t.Errorf("Release() error = %v, want *session.ConfigError", err)
	}
	if c.Active() {
		t.Error("Active() after failed Release, want false")
	}
	if err := c.Release(); err != nil {
		t.Errorf("second Release() error = %v, want nil", err)
	}
}
