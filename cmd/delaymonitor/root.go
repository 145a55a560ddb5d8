package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/config"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/utils"
	"github.com/spf13/cobra"
)

var (
	v              = config.NewViper()
	cfg            *config.Config
	configFilePath string
	logFilePointer *os.File
)

var rootCmd = &cobra.Command{
	Use:   "delaymonitor",
	Short: "Hear your microphone played back after a delay",
	Long: `delaymonitor plays the selected input device back through the selected
output device after an adjustable delay of up to five seconds, shows the
input level, and can record what is being monitored to a WAV file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v, configFilePath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logFilePointer, err = utils.ConfigureDefaultLogger(cfg.LogLevel, cfg.LogFile, slog.HandlerOptions{})
		if err != nil {
			return fmt.Errorf("failed to configure logger: %w", err)
		}
		slog.Debug("loaded config", "configFilePath", configFilePath, "config", cfg)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFilePath, "config", "config.yaml", "Set the file path to the config file.")
	flags.String("loglevel", "info", "Log level: none, error, warn, info or debug.")
	flags.String("logfile", "", "Write JSON logs to this file instead of stderr.")
	if err := config.BindFlags(v, flags, "loglevel", "logfile"); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(configCmd)
}
