package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/siteverify/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id                       TEXT PRIMARY KEY,
	run_key                  TEXT NOT NULL,
	run_timestamp_utc        TEXT NOT NULL,
	total                    INTEGER NOT NULL,
	final_flag_counts        TEXT NOT NULL,
	input_equivalence_counts TEXT NOT NULL,
	output_path              TEXT NOT NULL,
	output_sha256            TEXT NOT NULL,
	created_at               DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_outcomes (
	run_id               TEXT NOT NULL REFERENCES runs(id),
	position             INTEGER NOT NULL,
	input_id             TEXT NOT NULL,
	final_flag           TEXT NOT NULL,
	reason_codes         TEXT NOT NULL,
	input_equivalence    TEXT NOT NULL,
	input_incorrect_flag INTEGER NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_run_key ON runs(run_key);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(markBusy(err), "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// -- runs --

func (s *SQLiteStore) CreateRun(ctx context.Context, run *RunRecord) error {
	prepareRun(run, uuid.NewString)

	flags, err := json.Marshal(run.FinalFlagCounts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal final flag counts")
	}
	equiv, err := json.Marshal(run.InputEquivalenceCounts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal equivalence counts")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, run_key, run_timestamp_utc, total, final_flag_counts, input_equivalence_counts, output_path, output_sha256, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.RunKey, run.RunTimestamp, run.Total, string(flags), string(equiv),
		run.OutputPath, run.OutputSHA256, run.CreatedAt,
	)
	return eris.Wrap(markBusy(err), "sqlite: insert run")
}

const sqliteRunColumns = `id, run_key, run_timestamp_utc, total, final_flag_counts, input_equivalence_counts, output_path, output_sha256, created_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.RunKey != "" {
		query += ` AND run_key = ?`
		args = append(args, filter.RunKey)
	}
	query += ` ORDER BY created_at DESC, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// -- outcomes --

func (s *SQLiteStore) SaveOutcomes(ctx context.Context, runID string, outcomes []Outcome) (int64, error) {
	if len(outcomes) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(markBusy(err), "sqlite: begin outcomes tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_outcomes (run_id, position, input_id, final_flag, reason_codes, input_equivalence, input_incorrect_flag)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare outcome insert")
	}
	defer stmt.Close()

	for i, o := range outcomes {
		if _, err := stmt.ExecContext(ctx, runID, i, o.InputID, o.FinalFlag, o.ReasonCodes, o.InputEquivalence, o.InputIncorrect); err != nil {
			return 0, eris.Wrapf(markBusy(err), "sqlite: insert outcome %d for run %s", i, runID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(markBusy(err), "sqlite: commit outcomes")
	}
	return int64(len(outcomes)), nil
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT input_id, final_flag, reason_codes, input_equivalence, input_incorrect_flag
		 FROM run_outcomes WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list outcomes %s", runID)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.InputID, &o.FinalFlag, &o.ReasonCodes, &o.InputEquivalence, &o.InputIncorrect); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list outcomes iterate")
}

// helpers

// markBusy wraps SQLITE_BUSY and SQLITE_LOCKED results in a
// resilience.TransientError so callers retry them.
func markBusy(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return resilience.NewTransientError(err)
	}
	return err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row scannable) (*RunRecord, error) {
	var r RunRecord
	var flags, equiv string

	if err := row.Scan(&r.ID, &r.RunKey, &r.RunTimestamp, &r.Total, &flags, &equiv,
		&r.OutputPath, &r.OutputSHA256, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(flags), &r.FinalFlagCounts); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal final flag counts")
	}
	if err := json.Unmarshal([]byte(equiv), &r.InputEquivalenceCounts); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal equivalence counts")
	}
	return &r, nil
}
