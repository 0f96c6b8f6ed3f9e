package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/tierwise/pkg/engine"
	"github.com/pario-ai/tierwise/pkg/ledger/sqlite"
	"github.com/pario-ai/tierwise/pkg/mcp"
)

func newMCPCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start tierwise as an MCP server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			// Tools only classify, route and read stats; no upstream is called.
			var opts []engine.Option
			if sc := newScorer(cfg, logger); sc != nil {
				opts = append(opts, engine.WithScorer(sc))
			}
			eng, err := engine.New(cfg, nil, logger, opts...)
			if err != nil {
				return fmt.Errorf("init engine: %w", err)
			}
			defer func() { _ = eng.Close() }()

			var usage mcp.UsageStore
			if cfg.Ledger.DBPath != "" {
				store, err := sqlite.New(cfg.Ledger.DBPath)
				if err != nil {
					return fmt.Errorf("init ledger store: %w", err)
				}
				defer func() { _ = store.Close() }()
				usage = store
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return mcp.New(eng, usage, version, logger).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
