// Package cmd implements the mailrules command line.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "mailrules",
	Short: "Rule-based email processing for Gmail",
	Long: `mailrules stores mail from Gmail (or .eml files) in SQLite, matches it
against rules from a JSON file and applies the rule actions to the mailbox.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (toml, yaml or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides config")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
