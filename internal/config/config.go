package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/graph"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/pipeline"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/session"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Environment variables DELAYMONITOR_<KEY> override the config file.
const envPrefix = "DELAYMONITOR"

type Config struct {
	LogLevel string `mapstructure:"loglevel" yaml:"loglevel"`
	LogFile  string `mapstructure:"logfile" yaml:"logfile"`

	// Seconds, in [0, 5].
	Delay  float64 `mapstructure:"delay" yaml:"delay"`
	Input  string  `mapstructure:"input" yaml:"input"`
	Output string  `mapstructure:"output" yaml:"output"`

	RecordingsDirectory string `mapstructure:"recordingsdirectory" yaml:"recordingsdirectory"`

	BufferDuration time.Duration `mapstructure:"bufferduration" yaml:"bufferduration"`
	MixWithOthers  bool          `mapstructure:"mixwithothers" yaml:"mixwithothers"`

	RetryDelay         time.Duration `mapstructure:"retrydelay" yaml:"retrydelay"`
	MeterInterval      time.Duration `mapstructure:"meterinterval" yaml:"meterinterval"`
	RoutePolicy        string        `mapstructure:"routepolicy" yaml:"routepolicy"`
	DevicePollInterval time.Duration `mapstructure:"devicepollinterval" yaml:"devicepollinterval"`
}

func setViperDefaults(v *viper.Viper) {
	v.SetDefault("loglevel", "info")
	v.SetDefault("logfile", "")
	v.SetDefault("delay", 3.0)
	v.SetDefault("input", "")
	v.SetDefault("output", "")
	v.SetDefault("recordingsdirectory", defaultRecordingsDirectory())
	v.SetDefault("bufferduration", session.DefaultBufferDuration)
	v.SetDefault("mixwithothers", false)
	v.SetDefault("retrydelay", pipeline.DefaultRetryDelay)
	v.SetDefault("meterinterval", pipeline.DefaultMeterInterval)
	v.SetDefault("routepolicy", pipeline.RecoverAlways.String())
	v.SetDefault("devicepollinterval", time.Second)
}

func defaultRecordingsDirectory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "recordings"
	}
	return filepath.Join(home, "Music", "delaymonitor")
}

// A viper instance carrying the defaults and reading DELAYMONITOR_* environment
// variables. Callers may bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	return v
}

// Bind each named flag to the config key of the same name, so a flag set on
// the command line overrides the file and the environment.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, names ...string) error {
	for _, name := range names {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			return fmt.Errorf("binding flag %q: %w", name, err)
		}
	}
	return nil
}

// Read configFilePath (if not empty) into v, then decode and validate.
// A missing config file is not an error; the defaults are used.
func Load(v *viper.Viper, configFilePath string) (*Config, error) {
	if configFilePath != "" {
		v.SetConfigFile(configFilePath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("reading config file %s: %w", configFilePath, err)
			}
			slog.Info("no config file found", "configFilePath", configFilePath)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Load the config file at configFilePath over the defaults.
func LoadConfig(configFilePath string) (*Config, error) {
	return Load(NewViper(), configFilePath)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Delay < graph.MinDelaySeconds || c.Delay > graph.MaxDelaySeconds {
		errs = append(errs, fmt.Errorf("delay %v outside [%v, %v] seconds", c.Delay, graph.MinDelaySeconds, graph.MaxDelaySeconds))
	}
	if c.RecordingsDirectory == "" {
		errs = append(errs, errors.New("recordingsdirectory must not be empty"))
	}
	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{"bufferduration", c.BufferDuration},
		{"retrydelay", c.RetryDelay},
		{"meterinterval", c.MeterInterval},
		{"devicepollinterval", c.DevicePollInterval},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", d.key, d.value))
		}
	}
	if _, err := pipeline.ParseRoutePolicy(c.RoutePolicy); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// The pipeline options this config describes. Validate must have passed.
func (c *Config) PipelineOptions(listener pipeline.Listener) pipeline.Options {
	policy, _ := pipeline.ParseRoutePolicy(c.RoutePolicy)
	return pipeline.Options{
		RetryDelay:          c.RetryDelay,
		MeterInterval:       c.MeterInterval,
		RoutePolicy:         policy,
		RecordingsDirectory: c.RecordingsDirectory,
		Session: session.Options{
			BufferDuration: c.BufferDuration,
			MixWithOthers:  c.MixWithOthers,
		},
		Listener: listener,
	}
}

func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		DelaySeconds:      c.Delay,
		PreferredInputID:  c.Input,
		PreferredOutputID: c.Output,
	}
}
