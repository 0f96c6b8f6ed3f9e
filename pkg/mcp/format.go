package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pario-ai/tierwise/pkg/models"
)

func formatJudgment(j models.SemanticJudgment, trivial bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Complexity:        %d/100\n", j.ComplexityScore)
	fmt.Fprintf(&b, "Must use capable:  %t\n", j.MustUseCapable)
	fmt.Fprintf(&b, "Trivial:           %t\n", trivial)
	topics := "-"
	if len(j.Topics) > 0 {
		topics = strings.Join(j.Topics, ", ")
	}
	fmt.Fprintf(&b, "Topics:            %s\n", topics)

	var flags []string
	for _, f := range []struct {
		on   bool
		name string
	}{
		{j.IsValuationQuestion, "valuation"},
		{j.IsRatioQuestion, "ratio"},
		{j.RequiresExplanation, "explanation"},
		{j.RequiresComparison, "comparison"},
		{j.RequiresSynthesis, "synthesis"},
		{j.RequiresDeepAnalysis, "deep analysis"},
	} {
		if f.on {
			flags = append(flags, f.name)
		}
	}
	if len(flags) > 0 {
		fmt.Fprintf(&b, "Signals:           %s\n", strings.Join(flags, ", "))
	}
	if j.Justification != "" {
		fmt.Fprintf(&b, "Justification:     %s\n", j.Justification)
	}
	return b.String()
}

func formatDecision(d models.RoutingDecision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tier:        %s\n", d.Tier)
	fmt.Fprintf(&b, "Model:       %s\n", d.Model)
	fmt.Fprintf(&b, "Rule:        %s\n", d.Rule)
	fmt.Fprintf(&b, "Confidence:  %d%%\n", d.Confidence)
	fmt.Fprintf(&b, "Reason:      %s\n", d.Justification)
	if d.EstimatedCost > 0 {
		fmt.Fprintf(&b, "Est. cost:   $%.5f\n", d.EstimatedCost)
	}
	if d.Alternate != nil {
		fmt.Fprintf(&b, "Alternate:   %s %s\n", d.Alternate.Tier, d.Alternate.Reason)
	}
	return b.String()
}

func formatUsageStats(st models.UsageStats, rows []models.ModelSummary) string {
	if st.Requests == 0 {
		return "No usage data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Requests: %d (cached %d, failed %d, hit rate %.1f%%)\n",
		st.Requests, st.Cached, st.Failures, st.CacheHitRate*100)
	fmt.Fprintf(&b, "Tokens:   %d in / %d out\n", st.InputTokens, st.OutputTokens)
	fmt.Fprintf(&b, "Cost:     $%.4f\n", st.Cost)
	fmt.Fprintf(&b, "Latency:  %.0f ms avg\n\n", st.AvgDurationMs)

	tiers := make([]string, 0, len(st.ByTier))
	for t := range st.ByTier {
		tiers = append(tiers, t)
	}
	sort.Strings(tiers)
	fmt.Fprintf(&b, "%-10s %8s %8s %12s %12s %10s\n", "Tier", "Requests", "Cached", "Input", "Output", "Cost")
	b.WriteString(strings.Repeat("-", 65) + "\n")
	for _, t := range tiers {
		u := st.ByTier[t]
		fmt.Fprintf(&b, "%-10s %8d %8d %12d %12d %10.4f\n", t, u.Requests, u.Cached, u.InputTokens, u.OutputTokens, u.Cost)
	}

	if len(rows) > 0 {
		fmt.Fprintf(&b, "\n%-10s %-30s %8s %8s %10s\n", "Tier", "Model", "Requests", "Cached", "Cost")
		b.WriteString(strings.Repeat("-", 70) + "\n")
		for _, r := range rows {
			fmt.Fprintf(&b, "%-10s %-30s %8d %8d %10.4f\n", r.Tier, r.Model, r.Requests, r.Cached, r.Cost)
		}
	}

	if len(st.ByDay) > 0 {
		fmt.Fprintf(&b, "\n%-12s %8s %8s %10s\n", "Day", "Requests", "Cached", "Cost")
		b.WriteString(strings.Repeat("-", 41) + "\n")
		for _, d := range st.ByDay {
			fmt.Fprintf(&b, "%-12s %8d %8d %10.4f\n", d.Day, d.Requests, d.Cached, d.Cost)
		}
	}
	return b.String()
}

func formatCacheStats(stats models.CacheStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cache Statistics\n"+
		"  Entries:   %d\n"+
		"  Hits:      %d\n"+
		"  Misses:    %d\n"+
		"  Evictions: %d\n"+
		"  Hit Rate:  %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, stats.Evictions, stats.HitRate()*100)

	cats := make([]string, 0, len(stats.ByCategory))
	for c := range stats.ByCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		fmt.Fprintf(&b, "  %-20s %d\n", c+":", stats.ByCategory[c])
	}
	return b.String()
}
