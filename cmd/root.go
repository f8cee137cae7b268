package cmd

import (
	"os"

	"github.com/blockyarchive/blkar/internal/config"
	"github.com/blockyarchive/blkar/internal/logger"
	"github.com/blockyarchive/blkar/internal/report"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base CLI command
var rootCmd = &cobra.Command{
	Use:   "blkar",
	Short: "Blocked archiver offering bit rot protection",
	Long: `blkar encodes files into a self describing, block structured
container format with optional Reed-Solomon erasure coding, and decodes,
verifies, repairs and inspects such containers.

The container survives localized corruption, partial overwrites, head or
tail truncation, and sector shifts inside a larger disk image.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// CLI flags can override config settings
		if cmd.Flags().Changed("debug") {
			debug, _ := cmd.Flags().GetBool("debug")
			config.Instance.Debug = debug
		}
		if cmd.Flags().Changed("log-format") {
			logFormat, _ := cmd.Flags().GetString("log-format")
			config.Instance.LogFormat = logFormat
		}
		if cmd.Flags().Changed("config") && cfgFile != "" {
			if err := config.Initialize(cfgFile); err != nil {
				logger.LogError("Error loading config file", err, map[string]interface{}{
					"config_file": cfgFile,
				})
			}
		}
	},
}

// Execute runs the root command. It returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is search in standard locations)")
	rootCmd.PersistentFlags().Bool("json", false, "Emit a machine readable JSON report on stdout")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "human", "Log format: json or human")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(versionCmd)
}

// newReporter builds the reporter for one invocation from the
// persistent flags.
func newReporter(cmd *cobra.Command, verbose bool) *report.Reporter {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return report.New(os.Stdout, jsonMode, verbose)
}

// finishRun renders the final report and maps pipeline failure onto the
// command error. The report is always emitted, even on failure.
func finishRun(rep *report.Reporter, r *report.Report, err error) error {
	if ferr := rep.Finish(r, err); ferr != nil && err == nil {
		err = ferr
	}
	if err != nil {
		logger.LogError("Command failed", err, nil)
	}
	return err
}

// versionCmd shows the application version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("blkar v1.0.0")
	},
}
