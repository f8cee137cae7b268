package cmd

import (
	"github.com/blockyarchive/blkar/internal/core"
	"github.com/blockyarchive/blkar/internal/report"
	"github.com/spf13/cobra"
)

var rescueFlags struct {
	from    int64
	to      int64
	uid     string
	logFile string
}

// rescueCmd salvages blocks from a raw image
var rescueCmd = &cobra.Command{
	Use:   "rescue <image-file> <out-dir>",
	Short: "Salvage SBX blocks from an arbitrary byte stream",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep := newReporter(cmd, false)

		params := core.RescueParams{
			InFile:         args[0],
			OutDir:         args[1],
			FromByte:       rescueFlags.from,
			LogFile:        rescueFlags.logFile,
			ExpectedUIDHex: rescueFlags.uid,
		}
		if cmd.Flags().Changed("to") {
			params.ToByte = rescueFlags.to
			params.ToSet = true
		}

		ctx, stop := signalContext()
		defer stop()
		stats, err := core.Rescue(ctx, params, rep)
		return finishRun(rep, &report.Report{Stats: stats}, err)
	},
}

func init() {
	rescueCmd.Flags().Int64Var(&rescueFlags.from, "from", 0, "Start scanning at this byte offset")
	rescueCmd.Flags().Int64Var(&rescueFlags.to, "to", 0, "Stop scanning at this byte offset")
	rescueCmd.Flags().StringVar(&rescueFlags.uid, "uid", "", "Only salvage blocks with this UID (hex)")
	rescueCmd.Flags().StringVar(&rescueFlags.logFile, "log", "", "Rescue log path (default <out-dir>/rescue.log)")

	rootCmd.AddCommand(rescueCmd)
}
