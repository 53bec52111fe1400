package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlInvocations creates the audit table. Idempotent and safe to run on
// every application start. Note the absence of any text column: the schema
// cannot hold transcript content even by accident.
const ddlInvocations = `
CREATE TABLE IF NOT EXISTS redaction_invocations (
    invocation_id          TEXT         PRIMARY KEY,
    mode                   TEXT         NOT NULL,
    llm_enabled            BOOLEAN      NOT NULL,
    rule_count             INTEGER      NOT NULL DEFAULT 0,
    dictionary_count       INTEGER      NOT NULL DEFAULT 0,
    model_count            INTEGER      NOT NULL DEFAULT 0,
    hallucinations_blocked INTEGER      NOT NULL DEFAULT 0,
    rule_duration_ns       BIGINT       NOT NULL DEFAULT 0,
    dictionary_duration_ns BIGINT       NOT NULL DEFAULT 0,
    model_duration_ns      BIGINT       NOT NULL DEFAULT 0,
    total_duration_ns      BIGINT       NOT NULL DEFAULT 0,
    created_at             TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_invocations_created_at
    ON redaction_invocations (created_at);

CREATE INDEX IF NOT EXISTS idx_invocations_llm_enabled
    ON redaction_invocations (llm_enabled);
`

// PostgresStore is a [Store] backed by a pgx connection pool. Safe for
// concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Compile-time interface assertion.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the database at dsn, verifies connectivity,
// and runs [Migrate].
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("audit store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("audit store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit store: migrate: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate ensures the audit table exists. Idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlInvocations); err != nil {
		return fmt.Errorf("audit migrate: %w", err)
	}
	return nil
}

// Record inserts one invocation row.
func (s *PostgresStore) Record(ctx context.Context, rec Record) error {
	const q = `
INSERT INTO redaction_invocations (
    invocation_id, mode, llm_enabled,
    rule_count, dictionary_count, model_count, hallucinations_blocked,
    rule_duration_ns, dictionary_duration_ns, model_duration_ns, total_duration_ns
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, q,
		rec.InvocationID, rec.Mode, rec.LLMEnabled,
		rec.RuleCount, rec.DictionaryCount, rec.ModelCount, rec.HallucinationsBlocked,
		rec.RuleDuration.Nanoseconds(), rec.DictionaryDuration.Nanoseconds(),
		rec.ModelDuration.Nanoseconds(), rec.TotalDuration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("audit store: insert invocation %q: %w", rec.InvocationID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	const q = `
SELECT invocation_id, mode, llm_enabled,
       rule_count, dictionary_count, model_count, hallucinations_blocked,
       rule_duration_ns, dictionary_duration_ns, model_duration_ns, total_duration_ns,
       created_at
FROM redaction_invocations
ORDER BY created_at DESC
LIMIT $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("audit store: query recent: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec                              Record
			ruleNS, dictNS, modelNS, totalNS int64
		)
		err := rows.Scan(
			&rec.InvocationID, &rec.Mode, &rec.LLMEnabled,
			&rec.RuleCount, &rec.DictionaryCount, &rec.ModelCount, &rec.HallucinationsBlocked,
			&ruleNS, &dictNS, &modelNS, &totalNS,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("audit store: scan invocation: %w", err)
		}
		rec.RuleDuration = time.Duration(ruleNS)
		rec.DictionaryDuration = time.Duration(dictNS)
		rec.ModelDuration = time.Duration(modelNS)
		rec.TotalDuration = time.Duration(totalNS)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit store: iterate invocations: %w", err)
	}
	return records, nil
}

// Ping checks database connectivity. Used by the readiness probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
