package models

import "time"

// Outcome of a recorded turn.
const (
	OutcomeOK       = "ok"
	OutcomeCacheHit = "cache_hit"
	OutcomeError    = "error"
)

// UsageRecord is an immutable ledger line for one turn.
type UsageRecord struct {
	RequestID    string        `json:"request_id"`
	Timestamp    time.Time     `json:"timestamp"`
	Tier         Tier          `json:"tier"`
	Model        string        `json:"model"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Cost         float64       `json:"cost"`
	Duration     time.Duration `json:"duration"`
	Cached       bool          `json:"cached"`
	UpstreamTag  bool          `json:"upstream_cache_tag"`
	TaskType     string        `json:"task_type"`
	Rule         string        `json:"rule,omitempty"`
	Outcome      string        `json:"outcome"`
	Substituted  bool          `json:"substituted,omitempty"`
	TenantID     string        `json:"tenant_id,omitempty"`
	Step         int           `json:"step,omitempty"`
}

// UsageFilter selects ledger records; zero fields match everything.
type UsageFilter struct {
	Since      time.Time
	Until      time.Time
	Tier       *Tier
	TenantID   string
	TaskType   string
	CachedOnly bool
}

// Match reports whether rec passes the filter.
func (f UsageFilter) Match(rec UsageRecord) bool {
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !rec.Timestamp.Before(f.Until) {
		return false
	}
	if f.Tier != nil && rec.Tier != *f.Tier {
		return false
	}
	if f.TenantID != "" && rec.TenantID != f.TenantID {
		return false
	}
	if f.TaskType != "" && rec.TaskType != f.TaskType {
		return false
	}
	if f.CachedOnly && !rec.Cached {
		return false
	}
	return true
}

// TierUsage aggregates usage for one tier.
type TierUsage struct {
	Requests     int     `json:"requests"`
	Cached       int     `json:"cached"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// DayUsage aggregates usage for one UTC day.
type DayUsage struct {
	Day          string  `json:"day"`
	Requests     int     `json:"requests"`
	Cached       int     `json:"cached"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// UsageStats is the aggregate computed over a filtered set of records.
type UsageStats struct {
	Requests      int                  `json:"requests"`
	Cached        int                  `json:"cached"`
	Failures      int                  `json:"failures"`
	CacheHitRate  float64              `json:"cache_hit_rate"`
	InputTokens   int64                `json:"input_tokens"`
	OutputTokens  int64                `json:"output_tokens"`
	Cost          float64              `json:"cost"`
	AvgDurationMs float64              `json:"avg_duration_ms"`
	ByTier        map[string]TierUsage `json:"by_tier"`
	ByDay         []DayUsage           `json:"by_day"`
}

// ModelSummary aggregates usage for one tier and model pair.
type ModelSummary struct {
	Tier         string  `json:"tier"`
	Model        string  `json:"model"`
	Requests     int     `json:"requests"`
	Cached       int     `json:"cached"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}
