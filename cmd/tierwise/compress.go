package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/tierwise/pkg/compressor"
	"github.com/pario-ai/tierwise/pkg/models"
	"github.com/pario-ai/tierwise/pkg/tokens"
)

func newCompressCmd(load configLoader) *cobra.Command {
	var (
		budget int
		file   string
	)

	cmd := &cobra.Command{
		Use:   "compress",
		Short: "Compress a JSON conversation to a token budget",
		Long:  "Reads a JSON array of {role, content} messages from --file or stdin and prints the compressed conversation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if budget <= 0 {
				budget = cfg.Compressor.TokenBudget
			}

			var in io.Reader = cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open conversation: %w", err)
				}
				defer f.Close()
				in = f
			}

			var msgs []models.ChatMessage
			if err := json.NewDecoder(in).Decode(&msgs); err != nil {
				return fmt.Errorf("decode conversation: %w", err)
			}

			out := compressor.New(cfg.Compressor, nil).Compress(msgs, budget)
			fmt.Fprintf(cmd.ErrOrStderr(), "%d messages, ~%d tokens -> %d messages, ~%d tokens (budget %d)\n",
				len(msgs), tokens.EstimateMessages(msgs), len(out), tokens.EstimateMessages(out), budget)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().IntVar(&budget, "budget", 0, "token budget (default from config)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "conversation file (default stdin)")
	return cmd
}
