package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "crosschat",
	Short: "crosschat — relay messages across chat platforms",
	Long:  "crosschat mirrors messages between Telegram, Discord, Slack, and Google Chat,\nkeeping one logical identity per message so edits and deletes follow everywhere.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
}
