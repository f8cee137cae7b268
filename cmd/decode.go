package cmd

import (
	"strings"

	"github.com/blockyarchive/blkar/internal/core"
	"github.com/blockyarchive/blkar/internal/report"
	"github.com/blockyarchive/blkar/internal/sbx/specs"
	"github.com/spf13/cobra"
)

var decodeFlags struct {
	verbose bool
	pv      int
	uid     string
	force   bool
	burst   int
}

// decodeCmd reconstructs the original file from a container
var decodeCmd = &cobra.Command{
	Use:   "decode <sbx-file> [out-file]",
	Short: "Reconstruct the original file from an SBX container",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep := newReporter(cmd, decodeFlags.verbose)

		params := core.DecodeParams{
			InFile:  args[0],
			Force:   decodeFlags.force,
			Verbose: decodeFlags.verbose,
		}
		if len(args) == 2 {
			params.OutFile = args[1]
		} else {
			params.OutFile = strings.TrimSuffix(args[0], ".sbx")
			if params.OutFile == args[0] {
				params.OutFile = args[0] + ".decoded"
			}
		}
		if cmd.Flags().Changed("pv") {
			params.ExpectedVersion = byte(decodeFlags.pv)
			if !specs.IsKnownVersion(params.ExpectedVersion) {
				return finishRun(rep, &report.Report{}, specs.ErrUnknownVersion)
			}
		}
		if decodeFlags.uid != "" {
			uid, err := core.ParseUID(decodeFlags.uid)
			if err != nil {
				return finishRun(rep, &report.Report{}, err)
			}
			params.ExpectedUID = &uid
		}
		if cmd.Flags().Changed("burst") {
			b := decodeFlags.burst
			params.BurstHint = &b
		}

		ctx, stop := signalContext()
		defer stop()
		stats, err := core.Decode(ctx, params, rep)
		return finishRun(rep, &report.Report{Stats: stats}, err)
	},
}

func init() {
	decodeCmd.Flags().BoolVar(&decodeFlags.verbose, "verbose", false, "Report every failed block")
	decodeCmd.Flags().IntVar(&decodeFlags.pv, "pv", 0, "Only consider this container version")
	decodeCmd.Flags().StringVar(&decodeFlags.uid, "uid", "", "Only decode the container with this UID (hex)")
	decodeCmd.Flags().BoolVarP(&decodeFlags.force, "force", "f", false, "Overwrite the output file if it exists")
	decodeCmd.Flags().IntVar(&decodeFlags.burst, "burst", 0, "Burst error resistance hint for deinterleaving")

	rootCmd.AddCommand(decodeCmd)
}
