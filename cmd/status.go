package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kobosh/crosschat-go/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configured platforms and channel topology",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	specs, err := config.LoadChannelSpecs("")
	if err != nil {
		return fmt.Errorf("loading channels: %w", err)
	}

	fmt.Println("crosschat status")
	fmt.Println()
	fmt.Printf("Config: %s\n", config.GetConfigPath())

	fmt.Println("\nPlatforms:")
	if tg := cfg.Platform.Telegram; tg != nil && tg.Token != "" {
		fmt.Println("  telegram: configured")
	}
	if dc := cfg.Platform.Discord; dc != nil && dc.Token != "" {
		fmt.Println("  discord: configured")
	}
	if sl := cfg.Platform.Slack; sl != nil && sl.BotToken != "" {
		fmt.Println("  slack: configured")
	}
	if gc := cfg.Platform.GoogleChat; gc != nil && gc.Enabled {
		fmt.Println("  googlechat: configured")
	}
	if cfg.Redis.URL != "" {
		fmt.Println("\nRedis cache: configured")
	}

	fmt.Printf("\nChannels (%d):\n", len(specs))
	for _, spec := range specs {
		platforms := make([]string, 0, len(spec.IDs))
		for p := range spec.IDs {
			platforms = append(platforms, p)
		}
		sort.Strings(platforms)
		fmt.Printf("  %s:\n", spec.Name)
		for _, p := range platforms {
			fmt.Printf("    %s: %s\n", p, spec.IDs[p])
		}
	}
	return nil
}
