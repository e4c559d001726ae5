// Package postgres provides a PostgreSQL-backed RunStore.
//
// Every run is kept as a JSONB row, so history survives restarts and can be
// inspected with plain SQL. Totals are folded from the rows on read.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	llmr "github.com/aws-samples/llmresilience"
)

// Store is a PostgreSQL-backed RunStore.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

var _ llmr.RunStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "llmr_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New creates a new PostgreSQL-backed RunStore.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "llmr_",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) runsTable() string { return s.tablePrefix + "runs" }

// EnsureSchema creates the required tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			run_id TEXT PRIMARY KEY,
			scenario TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			elapsed_ms BIGINT NOT NULL,
			record JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS %[1]s_scenario_idx ON %[1]s (scenario, started_at);
	`, s.runsTable())
	_, err := s.pool.Exec(ctx, q)
	if err != nil {
		return fmt.Errorf("llmresilience/postgres: ensure schema: %w", err)
	}
	return nil
}

// Record inserts one run. A run id that was already recorded is ignored.
func (s *Store) Record(ctx context.Context, run llmr.RunRecord) error {
	if run.RunID == "" {
		return fmt.Errorf("llmresilience/postgres: run id is required")
	}
	body, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("llmresilience/postgres: marshal run: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (run_id, scenario, started_at, elapsed_ms, record)
			VALUES ($1, $2, $3, $4, $5) ON CONFLICT (run_id) DO NOTHING`, s.runsTable()),
		run.RunID, run.Scenario, run.StartedAt, run.Elapsed.Milliseconds(), body,
	)
	if err != nil {
		return fmt.Errorf("llmresilience/postgres: record: %w", err)
	}
	return nil
}

// Totals folds every recorded run of the scenario.
func (s *Store) Totals(ctx context.Context, scenario string) (llmr.Totals, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT record FROM %s WHERE scenario = $1 ORDER BY started_at`, s.runsTable()),
		scenario,
	)
	if err != nil {
		return llmr.Totals{}, fmt.Errorf("llmresilience/postgres: totals: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (llmr.RunRecord, error) {
		var body []byte
		if err := row.Scan(&body); err != nil {
			return llmr.RunRecord{}, err
		}
		var rec llmr.RunRecord
		err := json.Unmarshal(body, &rec)
		return rec, err
	})
	if err != nil {
		return llmr.Totals{}, fmt.Errorf("llmresilience/postgres: scan runs: %w", err)
	}

	t := llmr.NewTotals(scenario)
	for _, rec := range records {
		t.Add(rec)
	}
	return t, nil
}
