package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/siteverify/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id                       TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_key                  TEXT NOT NULL,
	run_timestamp_utc        TEXT NOT NULL,
	total                    INTEGER NOT NULL,
	final_flag_counts        JSONB NOT NULL,
	input_equivalence_counts JSONB NOT NULL,
	output_path              TEXT NOT NULL,
	output_sha256            TEXT NOT NULL,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_outcomes (
	run_id               TEXT NOT NULL REFERENCES runs(id),
	position             INTEGER NOT NULL,
	input_id             TEXT NOT NULL,
	final_flag           TEXT NOT NULL,
	reason_codes         TEXT NOT NULL,
	input_equivalence    TEXT NOT NULL,
	input_incorrect_flag BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_run_key ON runs(run_key);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// -- runs --

func (s *PostgresStore) CreateRun(ctx context.Context, run *RunRecord) error {
	prepareRun(run, uuid.NewString)

	flags, err := json.Marshal(run.FinalFlagCounts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal final flag counts")
	}
	equiv, err := json.Marshal(run.InputEquivalenceCounts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal equivalence counts")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, run_key, run_timestamp_utc, total, final_flag_counts, input_equivalence_counts, output_path, output_sha256, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.RunKey, run.RunTimestamp, run.Total, flags, equiv,
		run.OutputPath, run.OutputSHA256, run.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert run")
}

const postgresRunColumns = `id, run_key, run_timestamp_utc, total, final_flag_counts, input_equivalence_counts, output_path, output_sha256, created_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.RunKey != "" {
		query += fmt.Sprintf(` AND run_key = $%d`, argIdx)
		args = append(args, filter.RunKey)
		argIdx++
	}
	query += ` ORDER BY created_at DESC, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// -- outcomes --

var outcomeColumns = []string{"run_id", "position", "input_id", "final_flag", "reason_codes", "input_equivalence", "input_incorrect_flag"}

func (s *PostgresStore) SaveOutcomes(ctx context.Context, runID string, outcomes []Outcome) (int64, error) {
	rows := make([][]any, len(outcomes))
	for i, o := range outcomes {
		rows[i] = []any{runID, i, o.InputID, o.FinalFlag, o.ReasonCodes, o.InputEquivalence, o.InputIncorrect}
	}
	n, err := db.CopyFrom(ctx, s.pool, "run_outcomes", outcomeColumns, rows)
	return n, eris.Wrapf(err, "postgres: save outcomes for run %s", runID)
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT input_id, final_flag, reason_codes, input_equivalence, input_incorrect_flag
		 FROM run_outcomes WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list outcomes %s", runID)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.InputID, &o.FinalFlag, &o.ReasonCodes, &o.InputEquivalence, &o.InputIncorrect); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list outcomes iterate")
}

func scanPostgresRun(row pgx.Row) (*RunRecord, error) {
	var r RunRecord
	var flags, equiv []byte

	if err := row.Scan(&r.ID, &r.RunKey, &r.RunTimestamp, &r.Total, &flags, &equiv,
		&r.OutputPath, &r.OutputSHA256, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(flags, &r.FinalFlagCounts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal final flag counts")
	}
	if err := json.Unmarshal(equiv, &r.InputEquivalenceCounts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal equivalence counts")
	}
	return &r, nil
}
