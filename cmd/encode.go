package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blockyarchive/blkar/internal/config"
	"github.com/blockyarchive/blkar/internal/core"
	"github.com/blockyarchive/blkar/internal/report"
	"github.com/blockyarchive/blkar/internal/sbx/specs"
	"github.com/spf13/cobra"
)

var encodeFlags struct {
	sbxVersion int
	force      bool
	rsData     int
	rsParity   int
	burst      int
	uid        string
	hash       string
	sbxOut     string
}

// encodeCmd produces an SBX container from a file
var encodeCmd = &cobra.Command{
	Use:   "encode <file>",
	Short: "Encode a file into an SBX container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep := newReporter(cmd, false)

		version := byte(encodeFlags.sbxVersion)
		if !cmd.Flags().Changed("sbx-version") {
			version = byte(config.Instance.Defaults.SBXVersion)
		}
		rsData, rsParity, hash := encodeFlags.rsData, encodeFlags.rsParity, encodeFlags.hash
		if !cmd.Flags().Changed("rs-data") {
			rsData = config.Instance.Defaults.RSData
		}
		if !cmd.Flags().Changed("rs-parity") {
			rsParity = config.Instance.Defaults.RSParity
		}
		if !cmd.Flags().Changed("hash") {
			hash = config.Instance.Defaults.Hash
		}

		params := core.EncodeParams{
			InFile:  args[0],
			OutFile: encodeFlags.sbxOut,
			Version: version,
			Hash:    hash,
			Force:   encodeFlags.force,
		}
		if params.OutFile == "" {
			params.OutFile = args[0] + ".sbx"
		}
		if specs.UsesRS(version) {
			params.RS = &specs.RSParams{
				DataShards:   rsData,
				ParityShards: rsParity,
				Burst:        encodeFlags.burst,
			}
			if !cmd.Flags().Changed("burst") {
				// Default burst spreads damage across groups while
				// keeping the container layout detectable on decode.
				params.RS.Burst = 1 + params.RS.ParityShards
			}
		} else if cmd.Flags().Changed("rs-data") || cmd.Flags().Changed("rs-parity") {
			return finishRun(rep, &report.Report{},
				fmt.Errorf("%w: version %d does not support RS parity", core.ErrUsage, version))
		}
		if encodeFlags.uid != "" {
			uid, err := core.ParseUID(encodeFlags.uid)
			if err != nil {
				return finishRun(rep, &report.Report{}, err)
			}
			params.UID = &uid
		}

		ctx, stop := signalContext()
		defer stop()
		stats, err := core.Encode(ctx, params, rep)
		return finishRun(rep, &report.Report{Stats: stats}, err)
	},
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func init() {
	encodeCmd.Flags().IntVar(&encodeFlags.sbxVersion, "sbx-version", 1, "SBX container version (1, 2, 3, 17, 18, 19)")
	encodeCmd.Flags().BoolVarP(&encodeFlags.force, "force", "f", false, "Overwrite the output file if it exists")
	encodeCmd.Flags().IntVar(&encodeFlags.rsData, "rs-data", 10, "RS data shards per group (parity versions)")
	encodeCmd.Flags().IntVar(&encodeFlags.rsParity, "rs-parity", 2, "RS parity shards per group (parity versions)")
	encodeCmd.Flags().IntVar(&encodeFlags.burst, "burst", 0, "Burst error resistance in blocks")
	encodeCmd.Flags().StringVar(&encodeFlags.uid, "uid", "", "File UID override as hex")
	encodeCmd.Flags().StringVar(&encodeFlags.hash, "hash", "", "Hash algorithm: sha1, sha256, sha512, blake2b-512")
	encodeCmd.Flags().StringVar(&encodeFlags.sbxOut, "sbx-out", "", "Output container path (default <file>.sbx)")

	rootCmd.AddCommand(encodeCmd)
}
