package models

import (
	"fmt"
	"strings"
	"time"
)

// ContentCategory classifies cached content; it drives TTL and tenant scoping.
type ContentCategory int

const (
	CategoryClarification ContentCategory = iota
	CategorySectorGeneral
	CategoryCompanySpecific
	CategoryRatioAnalysis
	CategorySynthesis
)

// AllCategories lists every category in declaration order.
var AllCategories = []ContentCategory{
	CategoryClarification,
	CategorySectorGeneral,
	CategoryCompanySpecific,
	CategoryRatioAnalysis,
	CategorySynthesis,
}

func (c ContentCategory) String() string {
	switch c {
	case CategoryClarification:
		return "user_clarification"
	case CategorySectorGeneral:
		return "sector_general"
	case CategoryCompanySpecific:
		return "company_specific"
	case CategoryRatioAnalysis:
		return "ratio_analysis"
	case CategorySynthesis:
		return "synthesis"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Shareable reports whether entries of this category are shared across tenants.
func (c ContentCategory) Shareable() bool {
	return c == CategorySectorGeneral
}

// ParseContentCategory parses the String form of a category.
func ParseContentCategory(s string) (ContentCategory, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range AllCategories {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown content category %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c ContentCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ContentCategory) UnmarshalText(b []byte) error {
	parsed, err := ParseContentCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// SharedTenant replaces the tenant identifier on shareable entries.
const SharedTenant = "__shared__"

// CacheEntry stores a model response for reuse.
type CacheEntry struct {
	Key          string          `json:"key"`
	Response     string          `json:"response"`
	Tier         Tier            `json:"tier"`
	Model        string          `json:"model"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	Cost         float64         `json:"cost"`
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Hits         int             `json:"hits"`
	Tags         []string        `json:"tags"`
	TenantID     string          `json:"tenant_id"`
	Category     ContentCategory `json:"category"`
}

// HasTag reports whether tag is attached to the entry.
func (e *CacheEntry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Entries    int64            `json:"entries"`
	Hits       int64            `json:"hits"`
	Misses     int64            `json:"misses"`
	Evictions  int64            `json:"evictions"`
	ByCategory map[string]int64 `json:"by_category,omitempty"`
}

// HitRate returns hits / (hits + misses), or 0 when nothing was looked up.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
