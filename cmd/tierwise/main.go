package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pario-ai/tierwise/pkg/config"
	"github.com/pario-ai/tierwise/pkg/router"
	"github.com/pario-ai/tierwise/pkg/scorer"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tierwise",
		Short:         "Tierwise: two-tier LLM routing and response caching",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "tierwise.yaml", "path to config file")

	load := func(cmd *cobra.Command) (*config.Config, error) {
		return loadConfig(configPath, cmd.Flags().Changed("config"))
	}

	root.AddCommand(
		newServeCmd(load),
		newRouteCmd(load),
		newCompressCmd(load),
		newStatsCmd(load),
		newMCPCmd(load),
	)
	return root
}

type configLoader func(cmd *cobra.Command) (*config.Config, error)

// loadConfig reads path. A missing file falls back to defaults unless the
// path was given explicitly.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}

// newLogger builds a zap logger writing to stderr so stdout stays free for
// command output and the MCP transport.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if cfg.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.With(zap.String("service", "tierwise")), nil
}

// newScorer returns the configured scoring service client, or nil when no
// scorer.url is set.
func newScorer(cfg *config.Config, logger *zap.Logger) router.ComplexityScorer {
	if cfg.Scorer.URL == "" {
		return nil
	}
	return scorer.New(cfg.Scorer, logger)
}
