// Package dispatch calls the upstream model for a routing decision and
// falls back across the tier's alternate identifiers.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/tierwise/pkg/config"
	"github.com/pario-ai/tierwise/pkg/models"
)

// Request is a single upstream call.
type Request struct {
	Model             string
	System            string
	Messages          []models.ChatMessage
	MaxTokens         int
	CacheSystemPrompt bool
}

// EmitFunc receives streamed text chunks. Returning an error aborts the stream.
type EmitFunc func(chunk string) error

// Upstream streams one completion. Implementations classify their failures
// with Unavailable or Fatal; unclassified errors are treated as fatal.
type Upstream interface {
	Stream(ctx context.Context, req Request, emit EmitFunc) (models.Usage, error)
}

// Attempt records one candidate tried by Dispatch.
type Attempt struct {
	Model    string        `json:"model"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Result is a completed dispatch.
type Result struct {
	Model       string       `json:"model"`
	Text        string       `json:"text"`
	Usage       models.Usage `json:"usage"`
	Attempts    []Attempt    `json:"attempts"`
	Substituted bool         `json:"substituted"`
}

// CallOption tunes a single Dispatch call.
type CallOption func(*callOptions)

type callOptions struct {
	onReset func(model string)
}

// OnReset registers fn to be called when a candidate that already emitted
// text becomes unavailable. Whatever the caller forwarded from that model
// must be discarded before the next candidate starts emitting.
func OnReset(fn func(model string)) CallOption {
	return func(o *callOptions) { o.onReset = fn }
}

// Dispatcher walks the candidate list of a decision until one succeeds.
type Dispatcher struct {
	tiers       config.TiersConfig
	upstream    Upstream
	maxTokens   int
	cacheSystem bool
	logger      *zap.Logger
}

// New creates a Dispatcher sending requests through up.
func New(cfg *config.Config, up Upstream, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		tiers:       cfg.Tiers,
		upstream:    up,
		maxTokens:   cfg.Upstream.MaxTokens,
		cacheSystem: cfg.Upstream.PromptCaching,
		logger:      logger.With(zap.String("component", "dispatch")),
	}
}

// Candidates returns the decision's model followed by its tier's alternates,
// without duplicates.
func (d *Dispatcher) Candidates(dec models.RoutingDecision) []string {
	mt := d.tiers.Get(dec.Tier)
	primary := dec.Model
	if primary == "" {
		primary = mt.Model
	}

	seen := map[string]bool{primary: true}
	out := []string{primary}
	for _, m := range mt.Alternates {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// Dispatch streams a completion for dec, forwarding chunks to emit. An
// unavailable candidate's partial text is discarded, reported through
// OnReset if it was already emitted, and the next one is tried. Any other
// failure is returned at once. Cancellation of ctx stops forwarding and
// returns the context error.
func (d *Dispatcher) Dispatch(ctx context.Context, dec models.RoutingDecision, system string, msgs []models.ChatMessage, emit EmitFunc, opts ...CallOption) (*Result, error) {
	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}
	candidates := d.Candidates(dec)
	res := &Result{}

	var lastErr error
	for _, model := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var text strings.Builder
		forwarded := false
		start := time.Now()
		usage, err := d.upstream.Stream(ctx, Request{
			Model:             model,
			System:            system,
			Messages:          msgs,
			MaxTokens:         d.maxTokens,
			CacheSystemPrompt: d.cacheSystem,
		}, func(chunk string) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			text.WriteString(chunk)
			forwarded = true
			return emit(chunk)
		})
		res.Attempts = append(res.Attempts, Attempt{Model: model, Err: err, Duration: time.Since(start)})

		if err == nil {
			res.Model = model
			res.Text = text.String()
			res.Usage = usage
			res.Substituted = model != candidates[0]
			if res.Substituted {
				d.logger.Warn("model substituted",
					zap.String("requested", candidates[0]),
					zap.String("used", model),
					zap.String("tier", dec.Tier.String()),
					zap.Int("attempts", len(res.Attempts)))
			}
			return res, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		if !IsUnavailable(err) {
			return res, fmt.Errorf("dispatch %s: %w", model, err)
		}

		lastErr = err
		fields := []zap.Field{zap.String("model", model), zap.Error(err)}
		if forwarded {
			d.logger.Warn("candidate unavailable after partial output", fields...)
			if co.onReset != nil {
				co.onReset(model)
			}
		} else {
			d.logger.Info("candidate unavailable, trying next", fields...)
		}
	}

	return res, fmt.Errorf("%w: %d candidates for %s tier: %w",
		ErrNoModelAvailable, len(candidates), dec.Tier, lastErr)
}
