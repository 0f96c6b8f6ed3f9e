package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pario-ai/tierwise/pkg/classifier"
	"github.com/pario-ai/tierwise/pkg/models"
	"github.com/pario-ai/tierwise/pkg/router"
)

func newRouteCmd(load configLoader) *cobra.Command {
	var (
		sig        models.ConversationSignal
		msgType    string
		forceTier  string
		financials string
		complexity int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "route <utterance>",
		Short: "Show the routing decision for an utterance without calling a model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			cls, err := classifier.New(cfg.Classifier)
			if err != nil {
				return err
			}

			sig.MessageType = models.ParseMessageType(msgType)
			if forceTier != "" {
				t, err := models.ParseTier(forceTier)
				if err != nil {
					return err
				}
				sig.ForceTier = &t
			}
			if financials != "" {
				var snap models.FinancialSnapshot
				if err := json.Unmarshal([]byte(financials), &snap); err != nil {
					return fmt.Errorf("parse --financials: %w", err)
				}
				sig.Financials = &snap
			}
			if cmd.Flags().Changed("complexity") {
				sig.Score = &models.ComplexityScore{Complexity: complexity}
			}
			utterance := strings.Join(args, " ")

			d := router.New(cfg, cls, newScorer(cfg, nil), nil).Route(cmd.Context(), sig, utterance)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			}
			_, err = fmt.Fprintln(out, d.Explain())
			return err
		},
	}

	cmd.Flags().IntVar(&sig.Step, "step", 0, "step index in the guided flow")
	cmd.Flags().IntVar(&sig.TotalSteps, "total-steps", 0, "total number of steps")
	cmd.Flags().IntVar(&sig.ConversationLength, "length", 0, "messages so far in the conversation")
	cmd.Flags().StringVar(&sig.SectorCode, "sector", "", "sector code")
	cmd.Flags().StringVar(&msgType, "type", "question", "message type: question, response, analysis, synthesis")
	cmd.Flags().StringVar(&forceTier, "force", "", "force a tier: fast or capable")
	cmd.Flags().StringVar(&financials, "financials", "", "financial snapshot as JSON, scored by the configured scorer")
	cmd.Flags().IntVar(&complexity, "complexity", 0, "use this complexity score instead of calling the scorer")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the decision as JSON")
	return cmd
}
