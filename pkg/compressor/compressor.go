// Package compressor keeps a conversation history within a token budget by
// replacing its middle section with an extractive summary.
package compressor

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pario-ai/tierwise/pkg/config"
	"github.com/pario-ai/tierwise/pkg/models"
	"github.com/pario-ai/tierwise/pkg/tokens"
)

const maxFragmentRunes = 160

var (
	amountRe   = regexp.MustCompile(`(?i)(?:[$€]\s?\d[\d.,]*|\d[\d.,]*(?:\s\d{3})*\s?(?:k€|m€|€|\$|eur\b|euros?\b|usd\b|millions?\b|milliards?\b|mds?\b))`)
	percentRe  = regexp.MustCompile(`\d+(?:[.,]\d+)?\s?%`)
	keywordRe  = regexp.MustCompile(`(?i)(?:ebitda|chiffre d'affaires|revenue|r[ée]sultat net|net income|dette|debt|capitaux propres|equity|tr[ée]sorerie|\bcash\b|effectif|employees|secteur|\bsector\b|marge|margin|croissance|growth|valorisation|valuation)`)
	sentenceRe = regexp.MustCompile(`[.!?]\s+|\n+`)
)

// Compressor shrinks message lists that exceed a token budget.
type Compressor struct {
	keepRecent int
	maxPoints  int
	logger     *zap.Logger
}

// New creates a Compressor from cfg. A nil logger disables logging.
func New(cfg config.CompressorConfig, logger *zap.Logger) *Compressor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compressor{
		keepRecent: cfg.KeepRecent,
		maxPoints:  cfg.MaxSummaryPoints,
		logger:     logger.With(zap.String("component", "compressor")),
	}
}

// Compress returns msgs unchanged when they fit budget. Otherwise it keeps the
// first message and the most recent ones verbatim and summarises the rest.
// The result never shrinks below [first, summary].
func (c *Compressor) Compress(msgs []models.ChatMessage, budget int) []models.ChatMessage {
	before := tokens.EstimateMessages(msgs)
	if before <= budget || len(msgs) < 2 {
		return msgs
	}

	first := msgs[0]
	rest := msgs[1:]
	split := len(rest) - c.keepRecent
	if split < 0 {
		split = 0
	}
	dropped := append([]models.ChatMessage(nil), rest[:split]...)
	recent := rest[split:]

	for {
		out := make([]models.ChatMessage, 0, len(recent)+2)
		out = append(out, first)
		if len(dropped) > 0 {
			out = append(out, c.summarize(dropped))
		}
		out = append(out, recent...)

		after := tokens.EstimateMessages(out)
		if after <= budget || len(recent) == 0 {
			c.logger.Debug("history compressed",
				zap.Int("messages_before", len(msgs)),
				zap.Int("messages_after", len(out)),
				zap.Int("tokens_before", before),
				zap.Int("tokens_after", after),
				zap.Int("budget", budget))
			return out
		}
		dropped = append(dropped, recent[0])
		recent = recent[1:]
	}
}

// Fragments returns the salient, deduplicated fragments of msgs, capped at limit.
// A fragment is a sentence carrying an amount, a percentage or a domain keyword.
func Fragments(msgs []models.ChatMessage, limit int) []string {
	if limit <= 0 {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, m := range msgs {
		for _, s := range sentenceRe.Split(m.Content, -1) {
			s = strings.TrimRight(strings.TrimSpace(s), ".!?")
			if s == "" || !salient(s) {
				continue
			}
			s = truncate(s, maxFragmentRunes)
			norm := strings.ToLower(s)
			if seen[norm] {
				continue
			}
			seen[norm] = true
			out = append(out, s)
			if len(out) >= limit {
				return out
			}
		}
	}
	return out
}

func (c *Compressor) summarize(dropped []models.ChatMessage) models.ChatMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "[Summary of %d earlier messages]", len(dropped))
	for _, f := range Fragments(dropped, c.maxPoints) {
		b.WriteString("\n- ")
		b.WriteString(f)
	}
	return models.ChatMessage{
		Role:    models.RoleUser,
		Content: b.String(),
		Summary: true,
	}
}

func salient(s string) bool {
	return amountRe.MatchString(s) || percentRe.MatchString(s) || keywordRe.MatchString(s)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
