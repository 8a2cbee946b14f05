package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/nexustouch/perfd/internal/config"
	"codeberg.org/nexustouch/perfd/internal/logger"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "perfd",
	Short: "Adaptive performance controller for NexusTouch render clients",
	Long: `perfd receives frame, interaction and device telemetry from render
clients and decides which animation tier (full, reduced, minimal) each of
them should run.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
			return err
		}
		logger.Debug().Str("config", cfg.ConfigFile()).Msg("Config loaded")
		return nil
	},
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(runCmd, replayCmd, overlayCmd, historyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
