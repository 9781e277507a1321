package cmd

import (
	"github.com/spf13/cobra"

	"github.com/user/chainsec-adk/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "chainsec-adk",
	Short: "Multi-tool smart contract security auditing (ADK Pattern)",
	Long: `ChainSec-ADK runs several smart contract analyzers and an AI reviewer
against the same code, merges their findings by weighted consensus and keeps
the results per audit workspace and chain.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.Config{Format: LogFormat, Debug: DebugMode, Output: cmd.ErrOrStderr()})
	},
}

var (
	DebugMode bool
	LogFormat string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&DebugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&LogFormat, "log-format", "auto", "Log format: auto, console or json")
}
