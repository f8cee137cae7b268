package cmd

import (
	"github.com/blockyarchive/blkar/internal/core"
	"github.com/blockyarchive/blkar/internal/report"
	"github.com/blockyarchive/blkar/internal/sbx/specs"
	"github.com/spf13/cobra"
)

var showFlags struct {
	pv      int
	skipTo  int64
	to      int64
	showAll bool
}

// showCmd dumps metadata and block listings
var showCmd = &cobra.Command{
	Use:   "show <sbx-file>",
	Short: "Show metadata stored in an SBX container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep := newReporter(cmd, false)

		params := core.ShowParams{
			InFile:  args[0],
			SkipTo:  showFlags.skipTo,
			ShowAll: showFlags.showAll,
		}
		if cmd.Flags().Changed("pv") {
			params.ExpectedVersion = byte(showFlags.pv)
			if !specs.IsKnownVersion(params.ExpectedVersion) {
				return finishRun(rep, &report.Report{}, specs.ErrUnknownVersion)
			}
		}
		if cmd.Flags().Changed("to") {
			params.To = showFlags.to
			params.ToSet = true
		}

		ctx, stop := signalContext()
		defer stop()
		blocks, stats, err := core.Show(ctx, params, rep)
		return finishRun(rep, &report.Report{Stats: stats, Blocks: blocks}, err)
	},
}

func init() {
	showCmd.Flags().IntVar(&showFlags.pv, "pv", 0, "Only consider this container version")
	showCmd.Flags().Int64Var(&showFlags.skipTo, "skip-to", 0, "Start scanning at this byte offset (negative clamps to 0)")
	showCmd.Flags().Int64Var(&showFlags.to, "to", 0, "Stop scanning at this byte offset")
	showCmd.Flags().BoolVar(&showFlags.showAll, "show-all", false, "List every container and every data/parity block found")

	rootCmd.AddCommand(showCmd)
}
