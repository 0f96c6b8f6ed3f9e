package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pario-ai/tierwise/pkg/ledger"
	"github.com/pario-ai/tierwise/pkg/models"
)

type classifyArgs struct {
	Utterance string `json:"utterance"`
}

type routeArgs struct {
	Utterance          string `json:"utterance"`
	Step               int    `json:"step"`
	TotalSteps         int    `json:"total_steps"`
	MessageType        string `json:"message_type"`
	SectorCode         string `json:"sector_code"`
	ConversationLength int    `json:"conversation_length"`
	ForceTier          string `json:"force_tier"`
	Complexity         *int   `json:"complexity"`
}

type usageArgs struct {
	Since    string `json:"since"`
	Until    string `json:"until"`
	Tier     string `json:"tier"`
	TenantID string `json:"tenant_id"`
}

func (a usageArgs) get(key string) string {
	switch key {
	case "since":
		return a.Since
	case "until":
		return a.Until
	case "tier":
		return a.Tier
	case "tenant":
		return a.TenantID
	default:
		return ""
	}
}

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"tierwise_classify":    handleClassify,
	"tierwise_route":       handleRoute,
	"tierwise_usage_stats": handleUsageStats,
	"tierwise_cache_stats": handleCacheStats,
}

var allTools = []ToolDefinition{
	{
		Name:        "tierwise_classify",
		Description: "Classify a user utterance: detected topics, complexity score, whether the capable tier is required and whether it is a trivial clarification.",
		InputSchema: objectSchema(map[string]SchemaProperty{
			"utterance": stringProp("The user utterance to classify"),
		}, "utterance"),
	},
	{
		Name:        "tierwise_route",
		Description: "Preview the routing decision for a turn without calling the model.",
		InputSchema: objectSchema(map[string]SchemaProperty{
			"utterance":           stringProp("The user utterance (optional)"),
			"step":                intProp("Step index in the guided flow"),
			"total_steps":         intProp("Total number of steps in the flow"),
			"message_type":        stringProp("question, response, analysis or synthesis"),
			"sector_code":         stringProp("Sector code of the business (optional)"),
			"conversation_length": intProp("Number of messages so far"),
			"force_tier":          stringProp("fast or capable to override routing (optional)"),
			"complexity":          intProp("Financial complexity score 0-100 already obtained from the scoring service (optional)"),
		}),
	},
	{
		Name:        "tierwise_usage_stats",
		Description: "Show usage totals, cache hit rate, per-tier and per-day breakdowns.",
		InputSchema: objectSchema(map[string]SchemaProperty{
			"since":     stringProp("Start as YYYY-MM-DD, RFC 3339 or a duration like 24h (optional)"),
			"until":     stringProp("End, same formats as since (optional)"),
			"tier":      stringProp("fast or capable (optional)"),
			"tenant_id": stringProp("Filter by tenant (optional)"),
		}),
	},
	{
		Name:        "tierwise_cache_stats",
		Description: "Show response cache statistics (entries, hits, misses, evictions, hit rate).",
		InputSchema: objectSchema(nil),
	},
}

func handleClassify(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args classifyArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Utterance == "" {
		return errorResult("utterance is required")
	}
	j, trivial := s.engine.Classify(args.Utterance)
	return textResult(formatJudgment(j, trivial))
}

func handleRoute(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args routeArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}

	sig := models.ConversationSignal{
		Step:               args.Step,
		TotalSteps:         args.TotalSteps,
		MessageType:        models.ParseMessageType(args.MessageType),
		SectorCode:         args.SectorCode,
		ConversationLength: args.ConversationLength,
	}
	if args.ForceTier != "" {
		t, err := models.ParseTier(args.ForceTier)
		if err != nil {
			return errorResult(err.Error())
		}
		sig.ForceTier = &t
	}
	if args.Complexity != nil {
		sig.Score = &models.ComplexityScore{Complexity: *args.Complexity}
	}

	d := s.engine.Route(ctx, sig, args.Utterance)
	return textResult(formatDecision(d))
}

func handleUsageStats(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args usageArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	f, err := ledger.ParseFilter(args.get, time.Now())
	if err != nil {
		return errorResult("Invalid filter: " + err.Error())
	}

	if s.usage == nil {
		return textResult(formatUsageStats(s.engine.UsageStats(f), nil))
	}

	recs, err := s.usage.Query(ctx, f)
	if err != nil {
		return errorResult("Error fetching usage: " + err.Error())
	}
	rows, err := s.usage.Summary(ctx, f)
	if err != nil {
		return errorResult("Error fetching usage summary: " + err.Error())
	}
	return textResult(formatUsageStats(ledger.Aggregate(recs), rows))
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatCacheStats(s.engine.CacheStats()))
}
