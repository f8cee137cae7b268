package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/blockyarchive/blkar/internal/core"
	"github.com/blockyarchive/blkar/internal/report"
	"github.com/spf13/cobra"
)

var updateFlags struct {
	snm       string
	fnm       string
	noSNM     bool
	noFNM     bool
	assumeYes bool
	dryRun    bool
}

// updateCmd edits metadata fields in place
var updateCmd = &cobra.Command{
	Use:   "update <sbx-file>",
	Short: "Update metadata fields of an SBX container in place",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep := newReporter(cmd, false)

		params := core.UpdateParams{
			InFile:   args[0],
			UnsetSNM: updateFlags.noSNM,
			UnsetFNM: updateFlags.noFNM,
			DryRun:   updateFlags.dryRun,
		}
		if cmd.Flags().Changed("snm") {
			s := updateFlags.snm
			params.SNM = &s
		}
		if cmd.Flags().Changed("fnm") {
			s := updateFlags.fnm
			params.FNM = &s
		}

		if !updateFlags.assumeYes && !updateFlags.dryRun {
			if !confirm(cmd, fmt.Sprintf("Update metadata of %s in place?", args[0])) {
				return finishRun(rep, &report.Report{}, core.ErrCancelled)
			}
		}

		ctx, stop := signalContext()
		defer stop()
		changes, stats, err := core.Update(ctx, params, rep)
		return finishRun(rep, &report.Report{Stats: stats, MetadataChanges: changes}, err)
	},
}

// confirm prompts on stderr and reads a y/n answer from stdin.
func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func init() {
	updateCmd.Flags().StringVar(&updateFlags.snm, "snm", "", "Set the stored SBX file name")
	updateCmd.Flags().StringVar(&updateFlags.fnm, "fnm", "", "Set the original file name")
	updateCmd.Flags().BoolVar(&updateFlags.noSNM, "no-snm", false, "Remove the stored SBX file name")
	updateCmd.Flags().BoolVar(&updateFlags.noFNM, "no-fnm", false, "Remove the original file name")
	updateCmd.Flags().BoolVarP(&updateFlags.assumeYes, "yes", "y", false, "Apply changes without confirmation")
	updateCmd.Flags().BoolVar(&updateFlags.dryRun, "dry-run", false, "Show changes without writing")

	rootCmd.AddCommand(updateCmd)
}
