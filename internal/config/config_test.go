package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/pipeline"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/session"
	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil", err)
	}
	if config.LogLevel != "info" || config.Delay != 3 || config.Input != "" || config.Output != "" {
		t.Errorf("LoadConfig() = %+v, want defaults", config)
	}
	if config.BufferDuration != session.DefaultBufferDuration {
		t.Errorf("BufferDuration = %v, want %v", config.BufferDuration, session.DefaultBufferDuration)
	}
	if config.RetryDelay != pipeline.DefaultRetryDelay || config.MeterInterval != pipeline.DefaultMeterInterval {
		t.Errorf("RetryDelay = %v, MeterInterval = %v, want package defaults", config.RetryDelay, config.MeterInterval)
	}
	if config.RoutePolicy != "always" {
		t.Errorf("RoutePolicy = %q, want %q", config.RoutePolicy, "always")
	}
	if config.RecordingsDirectory == "" {
		t.Error("RecordingsDirectory is empty")
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
loglevel: debug
delay: 1.5
input: "Core Audio:USB Mic"
recordingsdirectory: /tmp/takes
bufferduration: 5ms
mixwithothers: true
retrydelay: 1s
routepolicy: relevant
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil", err)
	}

	if config.LogLevel != "debug" || config.Delay != 1.5 || config.Input != "Core Audio:USB Mic" {
		t.Errorf("LoadConfig() = %+v", config)
	}
	if config.BufferDuration != 5*time.Millisecond || config.RetryDelay != time.Second {
		t.Errorf("BufferDuration = %v, RetryDelay = %v, want 5ms and 1s", config.BufferDuration, config.RetryDelay)
	}

	options := config.PipelineOptions(nil)
	if options.RoutePolicy != pipeline.RecoverRelevant {
		t.Errorf("PipelineOptions().RoutePolicy = %v, want %v", options.RoutePolicy, pipeline.RecoverRelevant)
	}
	if !options.Session.MixWithOthers || options.Session.BufferDuration != 5*time.Millisecond {
		t.Errorf("PipelineOptions().Session = %+v", options.Session)
	}
	if options.RecordingsDirectory != "/tmp/takes" {
		t.Errorf("PipelineOptions().RecordingsDirectory = %q, want /tmp/takes", options.RecordingsDirectory)
	}

	want := pipeline.Config{DelaySeconds: 1.5, PreferredInputID: "Core Audio:USB Mic"}
	if got := config.PipelineConfig(); got != want {
		t.Errorf("PipelineConfig() = %+v, want %+v", got, want)
	}
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("DELAYMONITOR_DELAY", "4.5")
	t.Setenv("DELAYMONITOR_OUTPUT", "ALSA:Headphones")

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil", err)
	}
	if config.Delay != 4.5 || config.Output != "ALSA:Headphones" {
		t.Errorf("Delay = %v, Output = %q, want 4.5 and ALSA:Headphones", config.Delay, config.Output)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		contents string
		want     string
	}{
		{"delay too long", "delay: 7\n", "delay"},
		{"negative delay", "delay: -1\n", "delay"},
		{"zero meter interval", "meterinterval: 0s\n", "meterinterval"},
		{"unknown policy", "routepolicy: sometimes\n", "route policy"},
		{"malformed yaml", "delay: [1\n", "reading config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadConfig(writeConfig(t, tt.contents))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadConfig() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestBindFlags(t *testing.T) {
	t.Parallel()

	v := NewViper()
	flags := pflag.NewFlagSet("monitor", pflag.ContinueOnError)
	flags.Float64("delay", 3, "")
	flags.String("input", "", "")
	if err := BindFlags(v, flags, "delay", "input"); err != nil {
		t.Fatalf("BindFlags() error = %v, want nil", err)
	}
	if err := flags.Parse([]string{"--delay", "1.5", "--input", "usb-mic"}); err != nil {
		t.Fatalf("Parse() error = %v, want nil", err)
	}

	config, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if config.Delay != 1.5 || config.Input != "usb-mic" {
		t.Errorf("Load() delay, input = %v, %q, want 1.5, %q", config.Delay, config.Input, "usb-mic")
	}
}

func TestBindFlagsUnknownFlag(t *testing.T) {
	t.Parallel()

	flags := pflag.NewFlagSet("monitor", pflag.ContinueOnError)
	flags.Float64("delay", 3, "")
	err := BindFlags(NewViper(), flags, "delay", "dealy")
	if err == nil || !strings.Contains(err.Error(), "dealy") {
		t.Errorf("BindFlags() error = %v, want an error naming %q", err, "dealy")
	}
}
