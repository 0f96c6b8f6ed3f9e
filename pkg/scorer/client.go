// Package scorer calls the external financial complexity scoring service.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/pario-ai/tierwise/pkg/config"
	"github.com/pario-ai/tierwise/pkg/models"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

type scoreRequest struct {
	Financials models.FinancialSnapshot `json:"financials"`
	SectorCode string                   `json:"sector_code"`
}

// Client posts a financial snapshot to the scoring service and decodes the
// returned ComplexityScore. It satisfies router.ComplexityScorer.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
	logger *zap.Logger
}

// New builds a Client from cfg. cfg.URL must be set.
func New(cfg config.ScorerConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "scorer")),
	}
}

// Score asks the service for the complexity of snapshot in sectorCode.
func (c *Client) Score(ctx context.Context, snapshot models.FinancialSnapshot, sectorCode string) (models.ComplexityScore, error) {
	body, err := json.Marshal(scoreRequest{Financials: snapshot, SectorCode: sectorCode})
	if err != nil {
		return models.ComplexityScore{}, fmt.Errorf("marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return models.ComplexityScore{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return models.ComplexityScore{}, fmt.Errorf("score request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return models.ComplexityScore{}, fmt.Errorf("score request: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var score models.ComplexityScore
	if err := json.NewDecoder(resp.Body).Decode(&score); err != nil {
		return models.ComplexityScore{}, fmt.Errorf("decode score: %w", err)
	}
	c.logger.Debug("scored snapshot",
		zap.String("sector", sectorCode),
		zap.Int("complexity", score.Complexity),
		zap.Bool("critical_anomaly", score.CriticalAnomaly),
		zap.Bool("atypical", score.Atypical))
	return score, nil
}
