package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSink persists traces with modernc.org/sqlite (pure-Go, no CGO).
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLite opens or creates the trace database at the given DSN.
func NewSQLite(dsn string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	// SQLite only supports one writer at a time. Keep the pool small.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS traces (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			input TEXT NOT NULL,
			output TEXT NOT NULL DEFAULT '',
			latency_ms REAL NOT NULL DEFAULT 0,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			cost_usd REAL NOT NULL DEFAULT 0,
			band TEXT NOT NULL DEFAULT '',
			requested_band TEXT NOT NULL DEFAULT '',
			inferred_band TEXT NOT NULL DEFAULT '',
			route_source TEXT NOT NULL DEFAULT '',
			plan TEXT NOT NULL DEFAULT '{}',
			provenance TEXT NOT NULL DEFAULT '{}',
			tags TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'success',
			error_message TEXT NOT NULL DEFAULT '',
			request_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_created_at ON traces(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_status ON traces(status)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteSink) Record(ctx context.Context, rec Record) error {
	plan, _ := json.Marshal(orEmptyMap(rec.Plan))
	provenance, _ := json.Marshal(orEmptyMap(rec.Provenance))
	tags, _ := json.Marshal(orEmptyList(rec.Tags))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO traces (
			id, created_at, provider, model, input, output,
			latency_ms, prompt_tokens, completion_tokens, cost_usd,
			band, requested_band, inferred_band, route_source,
			plan, provenance, tags, status, error_message, request_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.Provider, rec.Model, rec.Input, rec.Output,
		rec.LatencyMs, rec.PromptTokens, rec.CompletionTokens, rec.CostUSD,
		rec.Band, rec.RequestedBand, rec.InferredBand, rec.RouteSource,
		string(plan), string(provenance), string(tags),
		rec.Status, rec.ErrorMessage, rec.RequestID)
	return err
}

// List returns traces newest-first. An empty status matches everything.
func (s *SQLiteSink) List(ctx context.Context, limit, offset int, status string) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, created_at, provider, model, input, output,
		latency_ms, prompt_tokens, completion_tokens, cost_usd,
		band, requested_band, inferred_band, route_source,
		plan, provenance, tags, status, error_message, request_id
		FROM traces`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var rec Record
		var createdAt, plan, provenance, tags string
		if err := rows.Scan(&rec.ID, &createdAt, &rec.Provider, &rec.Model,
			&rec.Input, &rec.Output, &rec.LatencyMs, &rec.PromptTokens,
			&rec.CompletionTokens, &rec.CostUSD, &rec.Band, &rec.RequestedBand,
			&rec.InferredBand, &rec.RouteSource, &plan, &provenance, &tags,
			&rec.Status, &rec.ErrorMessage, &rec.RequestID); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		_ = json.Unmarshal([]byte(plan), &rec.Plan)
		_ = json.Unmarshal([]byte(provenance), &rec.Provenance)
		_ = json.Unmarshal([]byte(tags), &rec.Tags)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptyList(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}
