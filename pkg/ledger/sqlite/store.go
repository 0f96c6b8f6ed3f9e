// Package sqlite persists usage records to a SQLite database so the ledger
// survives restarts and can be queried offline.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/tierwise/pkg/models"
)

// Store is a ledger.Sink backed by SQLite.
type Store struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	tier TEXT NOT NULL,
	model TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost REAL NOT NULL,
	duration_ms INTEGER NOT NULL,
	cached INTEGER NOT NULL DEFAULT 0,
	upstream_tag INTEGER NOT NULL DEFAULT 0,
	task_type TEXT NOT NULL DEFAULT '',
	rule TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL DEFAULT 'ok',
	substituted INTEGER NOT NULL DEFAULT 0,
	tenant_id TEXT NOT NULL DEFAULT '',
	step INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_usage_time ON usage_records(created_at);
CREATE INDEX IF NOT EXISTS idx_usage_tenant_time ON usage_records(tenant_id, created_at);
`

const selectColumns = `request_id, created_at, tier, model, input_tokens, output_tokens, cost,
	duration_ms, cached, upstream_tag, task_type, rule, outcome, substituted, tenant_id, step`

// New opens the database at dbPath and runs auto-migration.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}

	return &Store{db: db}, nil
}

// Write stores a usage record.
func (s *Store) Write(ctx context.Context, rec models.UsageRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records (`+selectColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Timestamp.UTC(), rec.Tier.String(), rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.Cost, rec.Duration.Milliseconds(),
		rec.Cached, rec.UpstreamTag, rec.TaskType, rec.Rule, rec.Outcome,
		rec.Substituted, rec.TenantID, rec.Step,
	)
	if err != nil {
		return fmt.Errorf("write usage: %w", err)
	}
	return nil
}

// where renders f as a SQL condition and its arguments.
func where(f models.UsageFilter) (string, []any) {
	var conds []string
	var args []any
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, f.Until.UTC())
	}
	if f.Tier != nil {
		conds = append(conds, "tier = ?")
		args = append(args, f.Tier.String())
	}
	if f.TenantID != "" {
		conds = append(conds, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.TaskType != "" {
		conds = append(conds, "task_type = ?")
		args = append(args, f.TaskType)
	}
	if f.CachedOnly {
		conds = append(conds, "cached = 1")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Query returns the records matching f, oldest first.
func (s *Store) Query(ctx context.Context, f models.UsageFilter) ([]models.UsageRecord, error) {
	cond, args := where(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM usage_records`+cond+` ORDER BY created_at ASC, id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		var tier string
		var durationMs int64
		if err := rows.Scan(&r.RequestID, &r.Timestamp, &tier, &r.Model, &r.InputTokens, &r.OutputTokens,
			&r.Cost, &durationMs, &r.Cached, &r.UpstreamTag, &r.TaskType, &r.Rule, &r.Outcome,
			&r.Substituted, &r.TenantID, &r.Step); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		if r.Tier, err = models.ParseTier(tier); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, r)
	}
	return records, rows.Err()
}

// Summary returns usage grouped by tier and model.
func (s *Store) Summary(ctx context.Context, f models.UsageFilter) ([]models.ModelSummary, error) {
	cond, args := where(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT tier, model, COUNT(*), SUM(cached), SUM(input_tokens), SUM(output_tokens), SUM(cost)
		 FROM usage_records`+cond+` GROUP BY tier, model ORDER BY tier, model`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.ModelSummary
	for rows.Next() {
		var m models.ModelSummary
		if err := rows.Scan(&m.Tier, &m.Model, &m.Requests, &m.Cached, &m.InputTokens, &m.OutputTokens, &m.Cost); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, m)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
