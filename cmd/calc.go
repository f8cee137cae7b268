package cmd

import (
	"github.com/blockyarchive/blkar/internal/core"
	"github.com/blockyarchive/blkar/internal/report"
	"github.com/blockyarchive/blkar/internal/sbx/specs"
	"github.com/spf13/cobra"
)

var calcFlags struct {
	sbxVersion int
	rsData     int
	rsParity   int
	burst      int
	inFileSize uint64
}

// calcCmd computes container geometry without touching files
var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Compute the container size for a given input size and parameters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rep := newReporter(cmd, false)

		params := core.CalcParams{
			Version:    byte(calcFlags.sbxVersion),
			InFileSize: calcFlags.inFileSize,
		}
		if specs.UsesRS(params.Version) {
			params.RS = &specs.RSParams{
				DataShards:   calcFlags.rsData,
				ParityShards: calcFlags.rsParity,
				Burst:        calcFlags.burst,
			}
		}

		stats, err := core.Calc(params)
		return finishRun(rep, &report.Report{Stats: stats}, err)
	},
}

func init() {
	calcCmd.Flags().IntVar(&calcFlags.sbxVersion, "sbx-version", 1, "SBX container version")
	calcCmd.Flags().IntVar(&calcFlags.rsData, "rs-data", 10, "RS data shards per group (parity versions)")
	calcCmd.Flags().IntVar(&calcFlags.rsParity, "rs-parity", 2, "RS parity shards per group (parity versions)")
	calcCmd.Flags().IntVar(&calcFlags.burst, "burst", 0, "Burst error resistance in blocks")
	calcCmd.Flags().Uint64Var(&calcFlags.inFileSize, "in-file-size", 0, "Input file size in bytes")

	rootCmd.AddCommand(calcCmd)
}
