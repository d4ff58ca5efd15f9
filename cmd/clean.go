package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hayate-dl/hayate/internal/download"
	"github.com/hayate-dl/hayate/internal/output"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [OUTPUT_PATH]",
		Short: "Remove stale resume state for an output file",
		Long:  "Removes the bitmap record and its staging file for the given output path. Only do this when no download for that path is in progress; the record is what makes an interrupted download resumable.",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := download.Clean(args[0]); err != nil {
				output.PrintError("Error cleaning up resume state")
				os.Exit(1)
			}
			output.PrintSuccess("Resume state cleaned up")
		},
	}
}
