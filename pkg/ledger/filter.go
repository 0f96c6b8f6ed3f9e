package ledger

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pario-ai/tierwise/pkg/models"
)

// ParseFilter builds a usage filter from query values. since and until
// accept a date (2006-01-02), an RFC 3339 timestamp or a duration such as
// "24h" counted back from now.
func ParseFilter(get func(string) string, now time.Time) (models.UsageFilter, error) {
	var f models.UsageFilter
	var err error
	if v := get("since"); v != "" {
		if f.Since, err = parseTime(v, now); err != nil {
			return f, fmt.Errorf("since: %w", err)
		}
	}
	if v := get("until"); v != "" {
		if f.Until, err = parseTime(v, now); err != nil {
			return f, fmt.Errorf("until: %w", err)
		}
	}
	if v := get("tier"); v != "" {
		t, err := models.ParseTier(v)
		if err != nil {
			return f, err
		}
		f.Tier = &t
	}
	if v := get("cached"); v != "" {
		if f.CachedOnly, err = strconv.ParseBool(v); err != nil {
			return f, fmt.Errorf("cached: %w", err)
		}
	}
	f.TenantID = get("tenant")
	f.TaskType = get("task_type")
	return f, nil
}

func parseTime(v string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(DayLayout, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", v)
	}
	return now.Add(-d), nil
}
