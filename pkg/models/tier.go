package models

import (
	"fmt"
	"strings"
)

// Tier selects one of the two upstream model configurations.
type Tier int

const (
	// TierFast is the cheap, low-latency tier.
	TierFast Tier = iota
	// TierCapable is the expensive, higher-quality tier.
	TierCapable
)

// String returns the configuration name of the tier.
func (t Tier) String() string {
	switch t {
	case TierFast:
		return "fast"
	case TierCapable:
		return "capable"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier parses "fast" or "capable" (case-insensitive).
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast":
		return TierFast, nil
	case "capable":
		return TierCapable, nil
	default:
		return 0, fmt.Errorf("unknown tier %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ModelTier describes how a tier is called upstream and what it costs.
type ModelTier struct {
	Tier       Tier     `json:"tier" yaml:"-"`
	Model      string   `json:"model" yaml:"model"`
	InputCost  float64  `json:"input_cost_per_mtok" yaml:"input_cost_per_mtok"`
	OutputCost float64  `json:"output_cost_per_mtok" yaml:"output_cost_per_mtok"`
	Alternates []string `json:"alternates,omitempty" yaml:"alternates"`
}

// Cost returns the USD cost of a call with the given token counts.
func (m ModelTier) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1e6*m.InputCost + float64(outputTokens)/1e6*m.OutputCost
}
