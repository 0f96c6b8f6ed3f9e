// Package engine runs one conversational turn end to end: history
// compression, cache probe, routing, dispatch and accounting.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pario-ai/tierwise/pkg/cache"
	"github.com/pario-ai/tierwise/pkg/classifier"
	"github.com/pario-ai/tierwise/pkg/compressor"
	"github.com/pario-ai/tierwise/pkg/config"
	"github.com/pario-ai/tierwise/pkg/dispatch"
	"github.com/pario-ai/tierwise/pkg/ledger"
	"github.com/pario-ai/tierwise/pkg/metrics"
	"github.com/pario-ai/tierwise/pkg/models"
	"github.com/pario-ai/tierwise/pkg/router"
)

// Turn is the input of one conversational turn.
type Turn struct {
	Utterance            string                    `json:"utterance"`
	TenantID             string                    `json:"tenant_id,omitempty"`
	SystemPrompt         string                    `json:"system_prompt,omitempty"`
	History              []models.ChatMessage      `json:"history,omitempty"`
	LastAssistantMessage string                    `json:"last_assistant_message,omitempty"`
	Signal               models.ConversationSignal `json:"signal"`
}

// Result describes how a turn was served.
type Result struct {
	RequestID   string                  `json:"request_id"`
	Decision    *models.RoutingDecision `json:"decision,omitempty"`
	Tier        models.Tier             `json:"tier"`
	Model       string                  `json:"model"`
	Text        string                  `json:"-"`
	Cached      bool                    `json:"cached"`
	Category    models.ContentCategory  `json:"category"`
	Usage       models.Usage            `json:"usage"`
	Cost        float64                 `json:"cost"`
	Substituted bool                    `json:"substituted,omitempty"`
}

type options struct {
	scorer  router.ComplexityScorer
	sink    ledger.Sink
	metrics *metrics.Collector
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*options)

// WithScorer sets the financial complexity provider used by the router.
func WithScorer(s router.ComplexityScorer) Option {
	return func(o *options) { o.scorer = s }
}

// WithSink forwards every usage record to s.
func WithSink(s ledger.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithMetrics records turn metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithClock replaces the wall clock used for timestamps and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Engine owns the process-wide cache and ledger and serves turns
// concurrently.
type Engine struct {
	cfg         *config.Config
	classifier  *classifier.Classifier
	compressor  *compressor.Compressor
	categorizer *cache.Categorizer
	fp          cache.Fingerprinter
	cache       *cache.Store
	router      *router.Router
	dispatcher  *dispatch.Dispatcher
	ledger      *ledger.Ledger
	metrics     *metrics.Collector
	now         func() time.Time
	logger      *zap.Logger
}

// New wires an Engine around up. The cache is nil when disabled in cfg.
func New(cfg *config.Config, up dispatch.Upstream, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	cls, err := classifier.New(cfg.Classifier)
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	e := &Engine{
		cfg:         cfg,
		classifier:  cls,
		compressor:  compressor.New(cfg.Compressor, logger),
		categorizer: cache.NewCategorizer(cls),
		fp:          cache.NewFingerprinter(cfg.Cache),
		router:      router.New(cfg, cls, o.scorer, logger),
		dispatcher:  dispatch.New(cfg, up, logger),
		ledger:      ledger.New(cfg.Ledger, o.sink, logger),
		metrics:     o.metrics,
		now:         o.now,
		logger:      logger.With(zap.String("component", "engine")),
	}
	if cfg.Cache.Enabled {
		e.cache = cache.New(cfg.Cache, logger, cache.WithClock(o.now))
	}
	return e, nil
}

// Handle serves t, streaming the response through emit. A cached response
// is re-chunked word by word. Failed turns are recorded with an error
// outcome and never cached; cancelled turns leave no trace in the cache or
// the ledger. opts are passed to the dispatcher.
func (e *Engine) Handle(ctx context.Context, t Turn, emit dispatch.EmitFunc, opts ...dispatch.CallOption) (*Result, error) {
	start := e.now()
	sig := t.Signal
	if sig.MessageType == "" {
		sig.MessageType = models.MessageQuestion
	}

	msgs := make([]models.ChatMessage, 0, len(t.History)+1)
	msgs = append(msgs, t.History...)
	if t.Utterance != "" {
		msgs = append(msgs, models.ChatMessage{Role: models.RoleUser, Content: t.Utterance})
	}
	msgs = e.compressor.Compress(msgs, e.cfg.Compressor.TokenBudget)

	category := e.categorizer.Categorize(t.Utterance, sig.MessageType)
	key := e.fp.Key(t.Utterance, cache.Scope{
		Category:             category,
		SectorCode:           sig.SectorCode,
		Step:                 sig.Step,
		TenantID:             t.TenantID,
		LastAssistantMessage: t.LastAssistantMessage,
	})

	res := &Result{RequestID: uuid.NewString(), Category: category}
	rec := models.UsageRecord{
		RequestID:   res.RequestID,
		TaskType:    string(sig.MessageType),
		TenantID:    t.TenantID,
		Step:        sig.Step,
		UpstreamTag: e.cfg.Upstream.PromptCaching && t.SystemPrompt != "",
	}

	if e.cache != nil && t.Utterance != "" {
		entry, hit := e.cache.Get(key)
		e.metrics.RecordCacheLookup(category, hit)
		if hit {
			return e.serveCached(ctx, entry, res, rec, start, emit)
		}
	}

	dec := e.router.Route(ctx, sig, t.Utterance)
	e.metrics.RecordDecision(dec)
	res.Decision = &dec
	res.Tier = dec.Tier
	rec.Tier = dec.Tier
	rec.Rule = dec.Rule

	out, err := e.dispatcher.Dispatch(ctx, dec, t.SystemPrompt, msgs, emit, opts...)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			e.logger.Info("turn cancelled",
				zap.String("request_id", res.RequestID),
				zap.String("tier", dec.Tier.String()),
				zap.Error(err))
			return res, err
		}
		rec.Model = dec.Model
		if n := len(out.Attempts); n > 0 {
			rec.Model = out.Attempts[n-1].Model
		}
		rec.Outcome = models.OutcomeError
		e.record(ctx, rec, start)
		e.logger.Error("turn failed",
			zap.String("request_id", res.RequestID),
			zap.String("tier", dec.Tier.String()),
			zap.Error(err))
		return res, err
	}

	mt := e.cfg.Tiers.Get(dec.Tier)
	res.Model = out.Model
	res.Text = out.Text
	res.Usage = out.Usage
	res.Cost = mt.Cost(out.Usage.InputTokens, out.Usage.OutputTokens)
	res.Substituted = out.Substituted
	if out.Substituted {
		e.metrics.RecordSubstitution(dec.Tier)
	}

	if e.cache != nil && t.Utterance != "" {
		e.cache.Put(key, out.Text, cache.Metadata{
			Tier:         dec.Tier,
			Model:        out.Model,
			InputTokens:  out.Usage.InputTokens,
			OutputTokens: out.Usage.OutputTokens,
			Cost:         res.Cost,
			TenantID:     t.TenantID,
			SectorCode:   sig.SectorCode,
			Category:     category,
		})
	}

	rec.Model = out.Model
	rec.InputTokens = out.Usage.InputTokens
	rec.OutputTokens = out.Usage.OutputTokens
	rec.Cost = res.Cost
	rec.Substituted = out.Substituted
	rec.Outcome = models.OutcomeOK
	e.record(ctx, rec, start)

	e.logger.Info("turn completed",
		zap.String("request_id", res.RequestID),
		zap.String("tier", dec.Tier.String()),
		zap.String("model", out.Model),
		zap.String("rule", dec.Rule),
		zap.Int("confidence", dec.Confidence),
		zap.Int("input_tokens", out.Usage.InputTokens),
		zap.Int("output_tokens", out.Usage.OutputTokens),
		zap.Float64("cost", res.Cost))
	return res, nil
}

func (e *Engine) serveCached(ctx context.Context, entry models.CacheEntry, res *Result, rec models.UsageRecord, start time.Time, emit dispatch.EmitFunc) (*Result, error) {
	for _, chunk := range Chunk(entry.Response) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := emit(chunk); err != nil {
			return res, err
		}
	}

	res.Tier = entry.Tier
	res.Model = entry.Model
	res.Text = entry.Response
	res.Cached = true
	res.Usage = models.Usage{InputTokens: entry.InputTokens, OutputTokens: entry.OutputTokens}

	rec.Tier = entry.Tier
	rec.Model = entry.Model
	rec.InputTokens = entry.InputTokens
	rec.OutputTokens = entry.OutputTokens
	rec.Cached = true
	rec.Outcome = models.OutcomeCacheHit
	e.record(ctx, rec, start)

	e.logger.Info("turn served from cache",
		zap.String("request_id", res.RequestID),
		zap.String("category", entry.Category.String()),
		zap.Int("hits", entry.Hits))
	return res, nil
}

func (e *Engine) record(ctx context.Context, rec models.UsageRecord, start time.Time) {
	rec.Timestamp = e.now()
	rec.Duration = rec.Timestamp.Sub(start)
	e.ledger.Record(ctx, rec)
	e.metrics.RecordTurn(rec)
}

// Chunk splits s into word-sized pieces that concatenate back to s.
func Chunk(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for len(s) > 0 {
		i := strings.IndexAny(s, " \n\t")
		if i < 0 {
			out = append(out, s)
			break
		}
		j := i
		for j < len(s) && (s[j] == ' ' || s[j] == '\n' || s[j] == '\t') {
			j++
		}
		out = append(out, s[:j])
		s = s[j:]
	}
	return out
}

// Route previews the decision for a turn without calling upstream.
func (e *Engine) Route(ctx context.Context, sig models.ConversationSignal, utterance string) models.RoutingDecision {
	return e.router.Route(ctx, sig, utterance)
}

// Classify returns the semantic judgment of utterance and whether it is a
// trivial clarification.
func (e *Engine) Classify(utterance string) (models.SemanticJudgment, bool) {
	return e.classifier.Classify(utterance), e.classifier.IsTrivialClarification(utterance)
}

// InvalidateTenant drops every tenant-scoped cache entry of tenant.
func (e *Engine) InvalidateTenant(tenant string) int {
	if e.cache == nil {
		return 0
	}
	n := e.cache.InvalidateByTenant(tenant)
	e.metrics.RecordInvalidation(n)
	e.logger.Info("cache invalidated", zap.String("tenant", tenant), zap.Int("removed", n))
	return n
}

// InvalidateTag drops every cache entry carrying tag.
func (e *Engine) InvalidateTag(tag string) int {
	if e.cache == nil {
		return 0
	}
	n := e.cache.InvalidateByTag(tag)
	e.metrics.RecordInvalidation(n)
	e.logger.Info("cache invalidated", zap.String("tag", tag), zap.Int("removed", n))
	return n
}

// UsageStats aggregates the retained ledger records matching f.
func (e *Engine) UsageStats(f models.UsageFilter) models.UsageStats {
	return e.ledger.Stats(f)
}

// UsageRecords returns the retained ledger records matching f, oldest first.
func (e *Engine) UsageRecords(f models.UsageFilter) []models.UsageRecord {
	return e.ledger.Records(f)
}

// CacheStats reports cache counters; it is zero when the cache is disabled.
func (e *Engine) CacheStats() models.CacheStats {
	if e.cache == nil {
		return models.CacheStats{}
	}
	return e.cache.Stats()
}

// Close releases the cache.
func (e *Engine) Close() error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Close()
}
