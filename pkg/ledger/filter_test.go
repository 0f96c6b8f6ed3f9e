package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	q := map[string]string{"since": "2026-05-01", "until": "24h", "tenant": "t1", "cached": "true"}
	f, err := ParseFilter(func(k string) string { return q[k] }, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), f.Since)
	assert.Equal(t, now.Add(-24*time.Hour), f.Until)
	assert.Equal(t, "t1", f.TenantID)
	assert.True(t, f.CachedOnly)
	assert.Nil(t, f.Tier)

	_, err = ParseFilter(func(k string) string {
		if k == "since" {
			return "yesterday"
		}
		return ""
	}, now)
	assert.Error(t, err)
}

func TestParseFilterTier(t *testing.T) {
	f, err := ParseFilter(func(k string) string {
		if k == "tier" {
			return "Fast"
		}
		return ""
	}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, f.Tier)
	assert.Equal(t, "fast", f.Tier.String())

	_, err = ParseFilter(func(k string) string {
		if k == "tier" {
			return "huge"
		}
		return ""
	}, time.Now())
	assert.Error(t, err)
}
