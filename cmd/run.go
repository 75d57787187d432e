package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kobosh/crosschat-go/internal/app"
	"github.com/kobosh/crosschat-go/internal/config"
)

var (
	runConfigPath   string
	runChannelsPath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relay in the foreground",
	RunE:  runRelay,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "config file path (default ~/.crosschat/config.json)")
	runCmd.Flags().StringVar(&runChannelsPath, "channels", "", "channel topology path (default ~/.crosschat/channels.yaml)")
	rootCmd.AddCommand(runCmd)
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	specs, err := config.LoadChannelSpecs(runChannelsPath)
	if err != nil {
		return fmt.Errorf("loading channels: %w", err)
	}
	if len(specs) == 0 {
		log.Println("[Run] no channels configured, nothing will be relayed")
	}

	a := app.New(cfg, specs)
	if len(a.Registry().PlatformNames()) == 0 {
		return fmt.Errorf("no platforms configured in %s", config.GetConfigPath())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Startup(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[Run] received %s, shutting down", sig)

	return a.Shutdown(context.Background())
}
