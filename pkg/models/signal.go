package models

import "strings"

// MessageType tags the role of a turn in the guided valuation flow.
type MessageType string

const (
	MessageQuestion  MessageType = "question"
	MessageResponse  MessageType = "response"
	MessageAnalysis  MessageType = "analysis"
	MessageSynthesis MessageType = "synthesis"
)

// ParseMessageType normalizes s; unknown values map to MessageQuestion.
func ParseMessageType(s string) MessageType {
	switch MessageType(strings.ToLower(strings.TrimSpace(s))) {
	case MessageResponse:
		return MessageResponse
	case MessageAnalysis:
		return MessageAnalysis
	case MessageSynthesis:
		return MessageSynthesis
	default:
		return MessageQuestion
	}
}

// UnmarshalText implements encoding.TextUnmarshaler with the same
// normalisation as ParseMessageType.
func (m *MessageType) UnmarshalText(b []byte) error {
	*m = ParseMessageType(string(b))
	return nil
}

// FinancialSnapshot is the structured financial data attached to a turn.
// The router never inspects it; it is handed to the complexity scorer.
type FinancialSnapshot struct {
	FiscalYear int     `json:"fiscal_year,omitempty"`
	Revenue    float64 `json:"revenue"`
	EBITDA     float64 `json:"ebitda"`
	NetIncome  float64 `json:"net_income"`
	TotalDebt  float64 `json:"total_debt"`
	Equity     float64 `json:"equity"`
	Cash       float64 `json:"cash"`
	Employees  int     `json:"employees,omitempty"`
}

// ComplexityScore is returned by the external financial scoring provider.
type ComplexityScore struct {
	Complexity      int  `json:"complexity"`
	CriticalAnomaly bool `json:"critical_anomaly"`
	Atypical        bool `json:"atypical,omitempty"`
}

// ConversationSignal is the per-turn input bundle for routing.
type ConversationSignal struct {
	Step               int                `json:"step"`
	TotalSteps         int                `json:"total_steps"`
	MessageType        MessageType        `json:"message_type,omitempty"`
	Financials         *FinancialSnapshot `json:"financials,omitempty"`
	SectorCode         string             `json:"sector_code,omitempty"`
	ConversationLength int                `json:"conversation_length"`
	ForceTier          *Tier              `json:"force_tier,omitempty"`

	// EstimatedInputTokens overrides the utterance-based input estimate
	// used for the advisory cost on the decision.
	EstimatedInputTokens int `json:"estimated_input_tokens,omitempty"`

	// Score is a complexity score the caller already obtained from the
	// scoring provider. When set, the router uses it instead of asking the
	// configured scorer.
	Score *ComplexityScore `json:"score,omitempty"`
}

// SemanticJudgment is the classifier output for one utterance.
type SemanticJudgment struct {
	IsValuationQuestion  bool     `json:"is_valuation_question"`
	IsRatioQuestion      bool     `json:"is_ratio_question"`
	RequiresExplanation  bool     `json:"requires_explanation"`
	RequiresComparison   bool     `json:"requires_comparison"`
	RequiresSynthesis    bool     `json:"requires_synthesis"`
	RequiresDeepAnalysis bool     `json:"requires_deep_analysis"`
	ComplexityScore      int      `json:"complexity_score"`
	Topics               []string `json:"topics,omitempty"`
	MustUseCapable       bool     `json:"must_use_capable"`
	Justification        string   `json:"justification,omitempty"`
}

// PatternRule is one entry of the classifier's declarative rule table.
// Topic rules contribute their Tag to the detected topics; the others
// only add weight. Rules are evaluated in table order, which is also
// the justification priority.
type PatternRule struct {
	Name          string   `json:"name" yaml:"name"`
	Tag           string   `json:"tag,omitempty" yaml:"tag"`
	Topic         bool     `json:"topic" yaml:"topic"`
	Weight        int      `json:"weight" yaml:"weight"`
	ForcesCapable bool     `json:"forces_capable" yaml:"forces_capable"`
	Justification string   `json:"justification,omitempty" yaml:"justification"`
	Patterns      []string `json:"patterns" yaml:"patterns"`
}
