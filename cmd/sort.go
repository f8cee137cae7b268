package cmd

import (
	"github.com/blockyarchive/blkar/internal/core"
	"github.com/blockyarchive/blkar/internal/report"
	"github.com/spf13/cobra"
)

var sortFlags struct {
	force bool
}

// sortCmd reorders container blocks by sequence number
var sortCmd = &cobra.Command{
	Use:   "sort <sbx-file> <out-file>",
	Short: "Rewrite a container with blocks in sequence number order",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep := newReporter(cmd, false)

		params := core.SortParams{
			InFile:  args[0],
			OutFile: args[1],
			Force:   sortFlags.force,
		}

		ctx, stop := signalContext()
		defer stop()
		stats, err := core.Sort(ctx, params, rep)
		return finishRun(rep, &report.Report{Stats: stats}, err)
	},
}

func init() {
	sortCmd.Flags().BoolVarP(&sortFlags.force, "force", "f", false, "Overwrite the output file if it exists")

	rootCmd.AddCommand(sortCmd)
}
