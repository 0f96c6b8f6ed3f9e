package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/tierwise/pkg/engine"
	"github.com/pario-ai/tierwise/pkg/ledger/sqlite"
	"github.com/pario-ai/tierwise/pkg/metrics"
	"github.com/pario-ai/tierwise/pkg/provider"
	"github.com/pario-ai/tierwise/pkg/server"
)

func newServeCmd(load configLoader) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			up, err := provider.New(cfg.Upstream, logger)
			if err != nil {
				return fmt.Errorf("init upstream: %w", err)
			}

			var opts []engine.Option
			if sc := newScorer(cfg, logger); sc != nil {
				opts = append(opts, engine.WithScorer(sc))
			}
			var collector *metrics.Collector
			if cfg.Metrics.Enabled {
				collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
				opts = append(opts, engine.WithMetrics(collector))
			}
			if cfg.Ledger.DBPath != "" {
				store, err := sqlite.New(cfg.Ledger.DBPath)
				if err != nil {
					return fmt.Errorf("init ledger store: %w", err)
				}
				defer func() { _ = store.Close() }()
				opts = append(opts, engine.WithSink(store))
			}

			eng, err := engine.New(cfg, up, logger, opts...)
			if err != nil {
				return fmt.Errorf("init engine: %w", err)
			}
			defer func() { _ = eng.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("starting tierwise",
				zap.String("version", version),
				zap.String("upstream", cfg.Upstream.Type),
				zap.String("fast_model", cfg.Tiers.Fast.Model),
				zap.String("capable_model", cfg.Tiers.Capable.Model),
				zap.Bool("cache", cfg.Cache.Enabled),
				zap.String("scorer", cfg.Scorer.URL),
				zap.String("ledger_db", cfg.Ledger.DBPath))
			return server.New(cfg.Listen, eng, collector, logger).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	return cmd
}
