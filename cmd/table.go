// cmd/table.go
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/keydecoder/internal/cw"
)

const tableColumns = 4

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Print the recognised letters and their codes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		writeTable(cmd.OutOrStdout())
		return nil
	},
}

func writeTable(w io.Writer) {
	letters := cw.Letters()
	rows := (len(letters) + tableColumns - 1) / tableColumns

	for r := 0; r < rows; r++ {
		var line strings.Builder
		for c := 0; c < tableColumns; c++ {
			i := c*rows + r
			if i >= len(letters) {
				break
			}
			fmt.Fprintf(&line, "%s %-6s", letters[i][0], letters[i][1])
		}
		fmt.Fprintln(w, strings.TrimRight(line.String(), " "))
	}
}
