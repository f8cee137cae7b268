package cmd

import (
	"github.com/blockyarchive/blkar/internal/core"
	"github.com/blockyarchive/blkar/internal/report"
	"github.com/blockyarchive/blkar/internal/sbx/specs"
	"github.com/spf13/cobra"
)

var checkFlags struct {
	pv          int
	verbose     bool
	reportBlank bool
	burst       int
}

// checkCmd verifies block CRCs and RS recoverability
var checkCmd = &cobra.Command{
	Use:   "check <sbx-file>",
	Short: "Verify every block's CRC and RS recoverability",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep := newReporter(cmd, checkFlags.verbose)

		params := core.CheckParams{
			InFile:      args[0],
			Verbose:     checkFlags.verbose,
			ReportBlank: checkFlags.reportBlank,
		}
		if cmd.Flags().Changed("pv") {
			params.ExpectedVersion = byte(checkFlags.pv)
			if !specs.IsKnownVersion(params.ExpectedVersion) {
				return finishRun(rep, &report.Report{}, specs.ErrUnknownVersion)
			}
		}
		if cmd.Flags().Changed("burst") {
			b := checkFlags.burst
			params.BurstHint = &b
		}

		ctx, stop := signalContext()
		defer stop()
		stats, err := core.Check(ctx, params, rep)
		return finishRun(rep, &report.Report{Stats: stats}, err)
	},
}

func init() {
	checkCmd.Flags().IntVar(&checkFlags.pv, "pv", 0, "Only consider this container version")
	checkCmd.Flags().BoolVar(&checkFlags.verbose, "verbose", false, "Report every failed block")
	checkCmd.Flags().BoolVar(&checkFlags.reportBlank, "report-blank", false, "Count completely blank blocks separately")
	checkCmd.Flags().IntVar(&checkFlags.burst, "burst", 0, "Burst error resistance hint")

	rootCmd.AddCommand(checkCmd)
}
