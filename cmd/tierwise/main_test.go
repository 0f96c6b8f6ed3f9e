package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/tierwise/pkg/config"
	"github.com/pario-ai/tierwise/pkg/ledger/sqlite"
	"github.com/pario-ai/tierwise/pkg/models"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestLoadConfigFallback(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Listen, cfg.Listen)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), true)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogFormat = "console"
	cfg.LogLevel = "debug"
	logger, err := newLogger(cfg)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	cfg.LogLevel = "chatty"
	_, err = newLogger(cfg)
	assert.Error(t, err)
}

func TestRouteCommand(t *testing.T) {
	out, err := run(t, "", "route", "20", "--step", "2", "--total-steps", "6", "--length", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "fast")
	assert.Contains(t, out, "trivial_clarification")

	out, err = run(t, "", "route", "Combien vaut mon entreprise ?", "--json")
	require.NoError(t, err)
	var d models.RoutingDecision
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, models.TierCapable, d.Tier)
	assert.GreaterOrEqual(t, d.Confidence, 95)

	_, err = run(t, "", "route", "x", "--force", "medium")
	assert.Error(t, err)
}

func TestRouteCommandScored(t *testing.T) {
	scoring := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"complexity":15}`))
	}))
	defer scoring.Close()

	path := filepath.Join(t.TempDir(), "tierwise.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scorer:\n  url: "+scoring.URL+"\n"), 0o600))

	out, err := run(t, "", "route", "-c", path, "--step", "4", "--total-steps", "6", "--sector", "1071C",
		"--financials", `{"revenue":850000,"ebitda":95000}`, "--json")
	require.NoError(t, err)
	var d models.RoutingDecision
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, models.TierFast, d.Tier)
	assert.Equal(t, "financial_complexity", d.Rule)

	out, err = run(t, "", "route", "--step", "4", "--total-steps", "6", "--sector", "1071C", "--complexity", "75")
	require.NoError(t, err)
	assert.Contains(t, out, "capable")
	assert.Contains(t, out, "financial_complexity")

	_, err = run(t, "", "route", "--financials", "{oops")
	assert.Error(t, err)
}

func TestCompressCommand(t *testing.T) {
	var msgs []models.ChatMessage
	for i := range 12 {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msgs = append(msgs, models.ChatMessage{Role: role, Content: strings.Repeat("Le chiffre d'affaires est de 1,2 M€. ", 5)})
	}
	in, err := json.Marshal(msgs)
	require.NoError(t, err)

	out, err := run(t, string(in), "compress", "--budget", "200")
	require.NoError(t, err)
	var got []models.ChatMessage
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Less(t, len(got), len(msgs))
	assert.Equal(t, msgs[0], got[0])
	assert.True(t, got[1].Summary)

	_, err = run(t, "not json", "compress")
	assert.Error(t, err)
}

func TestStatsCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "usage.db")
	store, err := sqlite.New(dbPath)
	require.NoError(t, err)
	now := time.Now().UTC()
	for _, rec := range []models.UsageRecord{
		{RequestID: "1", Timestamp: now, Tier: models.TierCapable, Model: "sonnet", InputTokens: 100, OutputTokens: 50, Cost: 0.001, Outcome: models.OutcomeOK},
		{RequestID: "2", Timestamp: now, Tier: models.TierFast, Model: "haiku", Cached: true, Outcome: models.OutcomeCacheHit},
	} {
		require.NoError(t, store.Write(context.Background(), rec))
	}
	require.NoError(t, store.Close())

	out, err := run(t, "", "stats", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Requests: 2")
	assert.Contains(t, out, "hit rate: 50.0%")
	assert.Contains(t, out, "sonnet")

	out, err = run(t, "", "stats", "--db", dbPath, "--tier", "fast", "--by-day")
	require.NoError(t, err)
	assert.Contains(t, out, "Requests: 1")
	assert.Contains(t, out, now.Format("2006-01-02"))

	out, err = run(t, "", "stats", "--db", dbPath, "--since", "1h", "--tenant", "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "No usage data found.")
}

func TestStatsCommandNeedsDB(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tierwise.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o644))

	_, err := run(t, "", "stats", "-c", path)
	assert.ErrorContains(t, err, "no ledger database")
}
