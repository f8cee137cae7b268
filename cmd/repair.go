package cmd

import (
	"github.com/blockyarchive/blkar/internal/core"
	"github.com/blockyarchive/blkar/internal/report"
	"github.com/blockyarchive/blkar/internal/sbx/specs"
	"github.com/spf13/cobra"
)

var repairFlags struct {
	pv      int
	dryRun  bool
	burst   int
	verbose bool
}

// repairCmd rewrites corrupt or missing blocks using parity
var repairCmd = &cobra.Command{
	Use:   "repair <sbx-file>",
	Short: "Repair corrupt or missing blocks in place using parity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep := newReporter(cmd, repairFlags.verbose)

		params := core.RepairParams{
			InFile:  args[0],
			DryRun:  repairFlags.dryRun,
			Verbose: repairFlags.verbose,
		}
		if cmd.Flags().Changed("pv") {
			params.ExpectedVersion = byte(repairFlags.pv)
			if !specs.IsKnownVersion(params.ExpectedVersion) {
				return finishRun(rep, &report.Report{}, specs.ErrUnknownVersion)
			}
		}
		if cmd.Flags().Changed("burst") {
			b := repairFlags.burst
			params.BurstHint = &b
		}

		ctx, stop := signalContext()
		defer stop()
		stats, err := core.Repair(ctx, params, rep)
		return finishRun(rep, &report.Report{Stats: stats}, err)
	},
}

func init() {
	repairCmd.Flags().IntVar(&repairFlags.pv, "pv", 0, "Only consider this container version")
	repairCmd.Flags().BoolVar(&repairFlags.dryRun, "dry-run", false, "Count repairs without writing")
	repairCmd.Flags().IntVar(&repairFlags.burst, "burst", 0, "Burst error resistance hint")
	repairCmd.Flags().BoolVar(&repairFlags.verbose, "verbose", false, "Report every repaired block")

	rootCmd.AddCommand(repairCmd)
}
