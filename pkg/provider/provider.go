// Package provider adapts upstream LLM SDKs to the dispatch.Upstream contract.
package provider

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pario-ai/tierwise/pkg/config"
	"github.com/pario-ai/tierwise/pkg/dispatch"
	"github.com/pario-ai/tierwise/pkg/models"
)

// New returns the upstream selected by cfg.Type.
func New(cfg config.UpstreamConfig, logger *zap.Logger) (dispatch.Upstream, error) {
	switch cfg.Type {
	case "", "anthropic":
		return NewAnthropic(cfg, logger), nil
	case "openai":
		return NewOpenAI(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown upstream type %q", cfg.Type)
	}
}

// classify maps an HTTP status to a dispatch failure class. Only 404 means
// the identifier is unknown upstream; everything else is fatal.
func classify(model string, status int, err error) error {
	if status == http.StatusNotFound {
		return dispatch.Unavailable(model, status, err)
	}
	return dispatch.Fatal(model, status, err)
}

// mergeTurns joins consecutive messages of the same role, as strictly
// alternating APIs require.
func mergeTurns(msgs []models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content = strings.Join([]string{out[n-1].Content, m.Content}, "\n\n")
			continue
		}
		out = append(out, m)
	}
	return out
}
