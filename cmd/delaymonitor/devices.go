package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/internal/portaudioapi"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List input and output devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := portaudioapi.NewDeviceAPI(nil)
		if err != nil {
			return err
		}
		defer api.Close()

		catalog := audioapi.NewCatalog(api, nil)
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Inputs:")
		printDevices(out, catalog.Inputs())
		fmt.Fprintln(out, "\nOutputs:")
		printDevices(out, catalog.Outputs())
		return nil
	},
}

func printDevices(w io.Writer, devices []audioapi.AudioIODevice) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  \tID\tKIND\tFORMAT")
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", marker, d.ID, d.Kind, d.DeviceProperties)
	}
	tw.Flush()
}
