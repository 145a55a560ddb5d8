package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/config"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/pipeline"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/portaudioapi"
	"github.com/spf13/cobra"
)

var recordOnStart bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Start delayed monitoring",
	Long: `Start delayed monitoring and read commands from stdin, one per line:

  delay <seconds>        change the delay (0 to 5)
  devices <in> [<out>]   switch devices; "-" means the system default
  pause | resume
  record                 start recording
  stop                   stop recording, keeping it for save or discard
  save | discard         finish the recording
  status
  quit`,
	RunE: runMonitor,
}

func init() {
	flags := monitorCmd.Flags()
	flags.Float64("delay", 3, "Delay in seconds, 0 to 5.")
	flags.String("input", "", "Input device ID; see `delaymonitor devices`. Empty means the system default.")
	flags.String("output", "", "Output device ID. Empty means the system default.")
	flags.BoolVar(&recordOnStart, "record", false, "Start recording immediately.")
	if err := config.BindFlags(v, flags, "delay", "input", "output"); err != nil {
		panic(err)
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	devices, err := portaudioapi.NewDeviceAPI(nil)
	if err != nil {
		return err
	}
	defer devices.Close()

	engine, err := portaudioapi.NewEngine(nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	out := cmd.OutOrStdout()
	listener := newTerminalListener(out)
	controller := pipeline.NewController(pipeline.Dependencies{
		Devices:  devices,
		Platform: portaudioapi.NewPlatform(devices, cfg.DevicePollInterval, nil),
		Engine:   engine,
	}, cfg.PipelineOptions(listener), nil)
	defer controller.Close()

	if err := controller.StartMonitoring(cfg.PipelineConfig()); err != nil {
		return fmt.Errorf("could not start monitoring: %w", err)
	}
	if recordOnStart {
		if _, err := controller.StartRecording(); err != nil {
			slog.Error("could not start recording", "err", err)
		}
	}

	lines := make(chan string)
	go readLines(cmd.InOrStdin(), lines)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := runCommand(controller, out, line)
			if err != nil {
				fmt.Fprintf(out, "\nerror: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

// Run one stdin command. Returns true when the user asked to quit.
func runCommand(c *pipeline.Controller, out io.Writer, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch fields[0] {
	case "quit", "exit":
		return true, nil
	case "delay":
		if len(fields) != 2 {
			return false, errors.New("usage: delay <seconds>")
		}
		seconds, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return false, fmt.Errorf("invalid delay %q: %w", fields[1], err)
		}
		return false, c.UpdateDelay(seconds)
	case "devices":
		if len(fields) < 2 || len(fields) > 3 {
			return false, errors.New("usage: devices <in> [<out>]")
		}
		output := "-"
		if len(fields) == 3 {
			output = fields[2]
		}
		return false, c.UpdateDevices(deviceArg(fields[1]), deviceArg(output))
	case "pause":
		return false, c.Pause()
	case "resume":
		return false, c.Resume()
	case "record":
		info, err := c.StartRecording()
		if err == nil {
			fmt.Fprintf(out, "\nrecording to %s\n", info.Path)
		}
		return false, err
	case "stop":
		path, err := c.StopRecording()
		if err == nil {
			fmt.Fprintf(out, "\nrecording stopped: %s (save or discard)\n", path)
		}
		return false, err
	case "save":
		path, err := c.SaveRecording()
		if err == nil {
			fmt.Fprintf(out, "\nsaved %s\n", path)
		}
		return false, err
	case "discard":
		return false, c.DiscardRecording()
	case "status":
		printStatus(out, c.Status())
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
}

func deviceArg(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

func printStatus(out io.Writer, status pipeline.Status) {
	fmt.Fprintf(out, "\nstate:    %v\n", status.State)
	fmt.Fprintf(out, "delay:    %.2fs\n", status.DelaySeconds)
	fmt.Fprintf(out, "input:    %s (%v)\n", status.Session.CurrentInputID, status.Session.InputFormat)
	fmt.Fprintf(out, "output:   %s (%v)\n", status.Session.CurrentOutputID, status.Session.OutputFormat)
	fmt.Fprintf(out, "buffer:   %v\n", status.Session.BufferDuration)
	if status.RecoveryPending {
		fmt.Fprintln(out, "recovery: retry pending")
	}
	if r := status.Recording; r != nil {
		fmt.Fprintf(out, "recording: %s active=%v frames=%d dropped=%d errors=%d\n",
			r.Path, r.Active, r.FramesWritten, r.Dropped, r.WriteErrors)
	}
}
