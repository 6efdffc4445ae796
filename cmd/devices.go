// cmd/devices.go
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/keydecoder/internal/audio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio capture and playback devices",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return listDevices(cmd.OutOrStdout(), audio.ListDevices)
	},
}

func listDevices(w io.Writer, list func(audio.Kind) ([]audio.Device, error)) error {
	for _, kind := range []audio.Kind{audio.KindCapture, audio.KindPlayback} {
		devices, err := list(kind)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s devices:\n", kind)
		if len(devices) == 0 {
			fmt.Fprintln(w, "  (none)")
		}
		for _, d := range devices {
			marker := " "
			if d.Default {
				marker = "*"
			}
			fmt.Fprintf(w, " %s[%d] %s\n", marker, d.Index, d.Name)
		}
	}
	return nil
}
