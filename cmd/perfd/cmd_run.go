package main

import (
	"context"

	"codeberg.org/nexustouch/perfd/internal/config"
	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/history"
	"codeberg.org/nexustouch/perfd/internal/logger"
	"codeberg.org/nexustouch/perfd/internal/pid"
	"codeberg.org/nexustouch/perfd/internal/probe"
	"codeberg.org/nexustouch/perfd/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve render sessions over websockets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), cfg)
	},
}

func historyConfig(c *config.Config) history.Config {
	return history.Config{
		Enabled:      c.History.Enabled,
		DBPath:       c.History.DBPath,
		BatchSize:    c.History.BatchSize,
		BatchTimeout: c.History.BatchTimeout,
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	pidFile := pid.New(cfg.PIDFile)
	if err := pidFile.Write(); err != nil {
		return err
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	host := probe.NewHost(probe.Config{
		SysfsRoot:    cfg.SysfsRoot,
		ProcfsRoot:   cfg.ProcfsRoot,
		NetworkClass: cfg.NetworkClass,
		Interval:     cfg.ProbeInterval,
		GPU:          cfg.GPUProbe,
	}, logger.WithComponent("probe"))
	defer host.Close()

	recorder, err := history.NewService(historyConfig(cfg), logger.WithComponent("history"))
	if err != nil {
		return err
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close history")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := server.NewMetrics(reg)

	hub := server.NewHub(server.HubOptions{
		Policy:      cfg.Policy(),
		Sampler:     cfg.Sampler(),
		InitialMode: cfg.Mode(),
		Device:      host.Device(),
		Recorder:    recorder,
		Metrics:     metrics,
		Logger:      logger.WithComponent("session"),
	})
	srv := server.New(cfg.Listen, hub, reg, metrics, logger.WithComponent("server"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		host.Watch(gctx, hub.UpdateHost)
		return nil
	})
	if cfg.ConfigFile() != "" {
		g.Go(func() error {
			return cfg.Watch(gctx, func(next *config.Config) {
				if lvl, err := logger.ParseLevel(next.LogLevel); err == nil {
					logger.SetLogLevel(lvl)
				}
				hub.UpdatePolicy(next.Policy())
			}, func(err error) {
				logger.Warn().Err(err).Msg("Ignoring invalid config reload")
			})
		})
	}

	logger.Info().
		Str("listen", cfg.Listen).
		Str("initial_mode", cfg.Mode().String()).
		Bool("history", cfg.History.Enabled).
		Msg("perfd started")

	err = g.Wait()
	if err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Msg("perfd stopped")
		}
		return err
	}

	logger.Info().Msg("Exiting...")
	return nil
}
