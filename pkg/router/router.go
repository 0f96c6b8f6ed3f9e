// Package router picks the model tier for a conversational turn. Rules are
// evaluated in a fixed order and the first match wins.
package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pario-ai/tierwise/pkg/classifier"
	"github.com/pario-ai/tierwise/pkg/config"
	"github.com/pario-ai/tierwise/pkg/models"
	"github.com/pario-ai/tierwise/pkg/tokens"
)

// Rule names reported on decisions.
const (
	RuleForced              = "forced"
	RuleSemantic            = "semantic"
	RuleTrivialClarify      = "trivial_clarification"
	RuleSynthesis           = "synthesis"
	RuleFinancialAnomaly    = "financial_anomaly"
	RuleFinancialComplexity = "financial_complexity"
	RuleDefault             = "default"
)

// ComplexityScorer is the external financial scoring provider.
type ComplexityScorer interface {
	Score(ctx context.Context, snapshot models.FinancialSnapshot, sectorCode string) (models.ComplexityScore, error)
}

// ScorerFunc adapts a function to ComplexityScorer.
type ScorerFunc func(ctx context.Context, snapshot models.FinancialSnapshot, sectorCode string) (models.ComplexityScore, error)

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, snapshot models.FinancialSnapshot, sectorCode string) (models.ComplexityScore, error) {
	return f(ctx, snapshot, sectorCode)
}

// Router turns a conversation signal and utterance into a routing decision.
type Router struct {
	tiers  config.TiersConfig
	cfg    config.RouterConfig
	cls    *classifier.Classifier
	scorer ComplexityScorer
	logger *zap.Logger
}

// New creates a Router. A nil scorer disables the financial rules.
func New(cfg *config.Config, cls *classifier.Classifier, scorer ComplexityScorer, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		tiers:  cfg.Tiers,
		cfg:    cfg.Router,
		cls:    cls,
		scorer: scorer,
		logger: logger.With(zap.String("component", "router")),
	}
}

// Route returns the decision for one turn. It never fails: a scorer error
// is logged and treated as an absent score.
func (r *Router) Route(ctx context.Context, sig models.ConversationSignal, utterance string) models.RoutingDecision {
	d := r.route(ctx, sig, utterance)

	mt := r.tiers.Get(d.Tier)
	d.Model = mt.Model
	in := sig.EstimatedInputTokens
	if in <= 0 {
		in = tokens.Estimate(utterance)
	}
	d.EstimatedCost = mt.Cost(in, r.cfg.ExpectedOutputTokens)

	r.logger.Debug("route decided",
		zap.String("rule", d.Rule),
		zap.String("tier", d.Tier.String()),
		zap.String("model", d.Model),
		zap.Int("confidence", d.Confidence),
		zap.Int("step", sig.Step))
	return d
}

func (r *Router) route(ctx context.Context, sig models.ConversationSignal, utterance string) models.RoutingDecision {
	if sig.ForceTier != nil {
		return decide(*sig.ForceTier, RuleForced, 100, "tier forced by caller")
	}

	var judgment *models.SemanticJudgment
	if utterance != "" {
		j := r.cls.Classify(utterance)
		judgment = &j
		if j.MustUseCapable {
			d := decide(models.TierCapable, RuleSemantic, 95, j.Justification)
			d.Judgment = judgment
			return d
		}
		if r.cls.IsTrivialClarification(utterance) &&
			sig.Step <= r.cfg.EarlyStepMax &&
			sig.ConversationLength <= r.cfg.ShortConversationMax {
			d := decide(models.TierFast, RuleTrivialClarify, 80, "trivial clarification early in the conversation")
			d.Alternate = &models.Alternate{Tier: models.TierCapable, Reason: "if financial context is detected"}
			d.Judgment = judgment
			return d
		}
	}

	d := r.routeSignal(ctx, sig)
	d.Judgment = judgment
	return d
}

func (r *Router) routeSignal(ctx context.Context, sig models.ConversationSignal) models.RoutingDecision {
	if sig.MessageType == models.MessageSynthesis || (sig.TotalSteps > 0 && sig.Step == sig.TotalSteps) {
		return decide(models.TierCapable, RuleSynthesis, 100, "final synthesis always uses the capable tier")
	}

	score, ok := r.score(ctx, sig)
	if !ok {
		return r.fallback()
	}

	switch {
	case score.CriticalAnomaly:
		return decide(models.TierCapable, RuleFinancialAnomaly, 95, "critical anomaly in the financial data")
	case score.Atypical:
		return decide(models.TierCapable, RuleFinancialAnomaly, 95, "atypical financial profile")
	}

	if sig.SectorCode == "" {
		return r.fallback()
	}
	if score.Complexity < r.cfg.LowComplexityThreshold &&
		(sig.MessageType == models.MessageQuestion || sig.MessageType == models.MessageResponse || sig.MessageType == "") {
		d := decide(models.TierFast, RuleFinancialComplexity, 70,
			fmt.Sprintf("low financial complexity (score %d)", score.Complexity))
		d.Alternate = &models.Alternate{Tier: models.TierCapable, Reason: "if the answer needs interpretation"}
		return d
	}
	confidence := 85
	if score.Complexity >= r.cfg.HighComplexityThreshold {
		confidence = 95
	}
	return decide(models.TierCapable, RuleFinancialComplexity, confidence,
		fmt.Sprintf("financial complexity score %d", score.Complexity))
}

func (r *Router) score(ctx context.Context, sig models.ConversationSignal) (models.ComplexityScore, bool) {
	if sig.Score != nil {
		return *sig.Score, true
	}
	if r.scorer == nil || sig.Financials == nil {
		return models.ComplexityScore{}, false
	}
	s, err := r.scorer.Score(ctx, *sig.Financials, sig.SectorCode)
	if err != nil {
		r.logger.Warn("complexity scorer failed", zap.Error(err), zap.String("sector", sig.SectorCode))
		return models.ComplexityScore{}, false
	}
	return s, true
}

func (r *Router) fallback() models.RoutingDecision {
	return decide(models.TierCapable, RuleDefault, 85, "no strong simple signal, defaulting to the capable tier")
}

func decide(t models.Tier, rule string, confidence int, why string) models.RoutingDecision {
	return models.RoutingDecision{
		Tier:          t,
		Rule:          rule,
		Confidence:    confidence,
		Justification: why,
	}
}
