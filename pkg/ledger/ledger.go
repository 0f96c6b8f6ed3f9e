// Package ledger keeps a bounded, append-only log of per-turn usage and
// aggregates it on demand.
package ledger

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/pario-ai/tierwise/pkg/config"
	"github.com/pario-ai/tierwise/pkg/models"
)

// DayLayout formats the per-day rollup keys.
const DayLayout = "2006-01-02"

// Sink receives every recorded entry, e.g. for durable storage.
type Sink interface {
	Write(ctx context.Context, rec models.UsageRecord) error
}

// Ledger is a ring buffer of usage records. The oldest records are dropped
// once the configured maximum is exceeded.
type Ledger struct {
	mu    sync.Mutex
	buf   []models.UsageRecord
	start int
	n     int

	sink   Sink
	logger *zap.Logger
}

// New creates a Ledger. sink may be nil.
func New(cfg config.LedgerConfig, sink Sink, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.MaxRecords
	if size <= 0 {
		size = 1
	}
	return &Ledger{
		buf:    make([]models.UsageRecord, size),
		sink:   sink,
		logger: logger.With(zap.String("component", "ledger")),
	}
}

// Record appends rec. Sink failures are logged and otherwise ignored.
func (l *Ledger) Record(ctx context.Context, rec models.UsageRecord) {
	l.mu.Lock()
	if l.n < len(l.buf) {
		l.buf[(l.start+l.n)%len(l.buf)] = rec
		l.n++
	} else {
		l.buf[l.start] = rec
		l.start = (l.start + 1) % len(l.buf)
	}
	l.mu.Unlock()

	if l.sink == nil {
		return
	}
	if err := l.sink.Write(context.WithoutCancel(ctx), rec); err != nil {
		l.logger.Warn("usage sink write failed", zap.Error(err), zap.String("request_id", rec.RequestID))
	}
}

// Len returns the number of retained records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// Records returns the retained records matching f, oldest first.
func (l *Ledger) Records(f models.UsageFilter) []models.UsageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.UsageRecord, 0, l.n)
	for i := 0; i < l.n; i++ {
		rec := l.buf[(l.start+i)%len(l.buf)]
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Stats aggregates the retained records matching f.
func (l *Ledger) Stats(f models.UsageFilter) models.UsageStats {
	return Aggregate(l.Records(f))
}

// Aggregate computes totals, per-tier and per-day rollups over recs.
func Aggregate(recs []models.UsageRecord) models.UsageStats {
	stats := models.UsageStats{ByTier: make(map[string]models.TierUsage)}
	days := make(map[string]*models.DayUsage)
	var totalMs float64

	for _, r := range recs {
		stats.Requests++
		stats.InputTokens += int64(r.InputTokens)
		stats.OutputTokens += int64(r.OutputTokens)
		stats.Cost += r.Cost
		totalMs += float64(r.Duration.Microseconds()) / 1000
		if r.Cached {
			stats.Cached++
		}
		if r.Outcome == models.OutcomeError {
			stats.Failures++
		}

		tier := stats.ByTier[r.Tier.String()]
		tier.Requests++
		tier.InputTokens += int64(r.InputTokens)
		tier.OutputTokens += int64(r.OutputTokens)
		tier.Cost += r.Cost
		if r.Cached {
			tier.Cached++
		}
		stats.ByTier[r.Tier.String()] = tier

		key := r.Timestamp.UTC().Format(DayLayout)
		day, ok := days[key]
		if !ok {
			day = &models.DayUsage{Day: key}
			days[key] = day
		}
		day.Requests++
		day.InputTokens += int64(r.InputTokens)
		day.OutputTokens += int64(r.OutputTokens)
		day.Cost += r.Cost
		if r.Cached {
			day.Cached++
		}
	}

	if stats.Requests > 0 {
		stats.CacheHitRate = float64(stats.Cached) / float64(stats.Requests)
		stats.AvgDurationMs = totalMs / float64(stats.Requests)
	}

	stats.ByDay = make([]models.DayUsage, 0, len(days))
	for _, d := range days {
		stats.ByDay = append(stats.ByDay, *d)
	}
	sort.Slice(stats.ByDay, func(i, j int) bool {
		return stats.ByDay[i].Day < stats.ByDay[j].Day
	})
	return stats
}
