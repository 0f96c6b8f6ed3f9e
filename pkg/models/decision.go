package models

import (
	"fmt"
	"strings"
)

// RoutingDecision is the router's output for one turn.
type RoutingDecision struct {
	Tier          Tier              `json:"tier"`
	Model         string            `json:"model"`
	Rule          string            `json:"rule"`
	Justification string            `json:"justification"`
	Confidence    int               `json:"confidence"`
	EstimatedCost float64           `json:"estimated_cost,omitempty"`
	Alternate     *Alternate        `json:"alternate,omitempty"`
	Judgment      *SemanticJudgment `json:"judgment,omitempty"`
}

// Alternate is an informational tier suggestion; it is never acted on.
type Alternate struct {
	Tier   Tier   `json:"tier"`
	Reason string `json:"reason"`
}

// Explain renders the decision as one human-readable line.
func (d RoutingDecision) Explain() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) via %s, confidence %d%%: %s",
		d.Tier, d.Model, d.Rule, d.Confidence, d.Justification)
	if d.EstimatedCost > 0 {
		fmt.Fprintf(&b, " [est. $%.5f]", d.EstimatedCost)
	}
	if d.Alternate != nil {
		fmt.Fprintf(&b, "; alternate %s %s", d.Alternate.Tier, d.Alternate.Reason)
	}
	return b.String()
}
