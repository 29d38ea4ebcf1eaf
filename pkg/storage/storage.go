package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrRunNotFound = errors.New("run not found")

type DB struct {
	sql *sql.DB
}

// Open opens or creates the history database at path, creating parent
// directories as needed.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS import_runs (
  id                 TEXT PRIMARY KEY,
  started_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  finished_at        DATETIME,
  project_id         TEXT NOT NULL,
  source_file        TEXT NOT NULL,
  dry_run            INTEGER NOT NULL CHECK (dry_run IN (0,1)),
  status             TEXT NOT NULL CHECK (status IN ('running','succeeded','failed')),
  groups_created     INTEGER NOT NULL DEFAULT 0,
  groups_existing    INTEGER NOT NULL DEFAULT 0,
  products_created   INTEGER NOT NULL DEFAULT 0,
  products_updated   INTEGER NOT NULL DEFAULT 0,
  products_unchanged INTEGER NOT NULL DEFAULT 0,
  conflicts          INTEGER NOT NULL DEFAULT 0,
  executed           INTEGER NOT NULL DEFAULT 0,
  error              TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON import_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_project ON import_runs(project_id, started_at);
CREATE TABLE IF NOT EXISTS import_operations (
  id          INTEGER PRIMARY KEY,
  run_id      TEXT NOT NULL REFERENCES import_runs(id) ON DELETE CASCADE,
  seq         INTEGER NOT NULL,
  kind        TEXT NOT NULL CHECK (kind IN ('create-group','create-product','update-product')),
  path        TEXT NOT NULL,
  handle      INTEGER NOT NULL DEFAULT 0,
  parent_id   TEXT,
  remote_id   TEXT,
  fields      TEXT,
  error       TEXT,
  occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_ops_run ON import_operations(run_id, seq);
    `); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// BeginRun records the start of an import pass and returns its ID.
func (d *DB) BeginRun(ctx context.Context, projectID, sourceFile string, dryRun bool, counts Counts) (string, error) {
	id := uuid.NewString()
	_, err := d.sql.ExecContext(ctx, `INSERT INTO import_runs(id, started_at, project_id, source_file, dry_run, status, groups_created, groups_existing, products_created, products_updated, products_unchanged, conflicts) VALUES(?,CURRENT_TIMESTAMP,?,?,?,'running',?,?,?,?,?,?)`,
		id, projectID, sourceFile, boolToInt(dryRun),
		counts.GroupsCreated, counts.GroupsExisting, counts.ProductsCreated, counts.ProductsUpdated, counts.ProductsUnchanged, counts.Conflicts)
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecordOperation appends an operation outcome to a run.
func (d *DB) RecordOperation(ctx context.Context, op OperationRecord) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO import_operations(run_id, seq, kind, path, handle, parent_id, remote_id, fields, error, occurred_at) VALUES(?,?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP)`,
		op.RunID, op.Seq, op.Kind, op.Path, op.Handle, nullIfEmpty(op.ParentID), nullIfEmpty(op.RemoteID), nullIfEmpty(op.Fields), nullIfEmpty(op.Error))
	return err
}

// FinishRun closes a run. A nil runErr marks it succeeded.
func (d *DB) FinishRun(ctx context.Context, runID string, executed int, runErr error) error {
	status, msg := RunSucceeded, ""
	if runErr != nil {
		status, msg = RunFailed, runErr.Error()
	}
	res, err := d.sql.ExecContext(ctx, `UPDATE import_runs SET finished_at = CURRENT_TIMESTAMP, status = ?, executed = ?, error = ? WHERE id = ?`,
		status, executed, nullIfEmpty(msg), runID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}

const runColumns = "id, started_at, finished_at, project_id, source_file, dry_run, status, groups_created, groups_existing, products_created, products_updated, products_unchanged, conflicts, executed, error"

// ListRecentRuns returns the most recent runs, newest first.
func (d *DB) ListRecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.sql.QueryContext(ctx, "SELECT "+runColumns+" FROM import_runs ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun looks a run up by ID or by a unique ID prefix.
func (d *DB) GetRun(ctx context.Context, id string) (Run, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT "+runColumns+` FROM import_runs WHERE id = ? OR id LIKE ? ESCAPE '\' LIMIT 2`, id, likePrefix(id))
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}
	for _, r := range found {
		if r.ID == id {
			return r, nil
		}
	}
	if len(found) != 1 {
		return Run{}, ErrRunNotFound
	}
	return found[0], nil
}

// ListRunOperations returns the operations of a run in execution order.
func (d *DB) ListRunOperations(ctx context.Context, runID string) ([]OperationRecord, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT run_id, seq, kind, path, handle, parent_id, remote_id, fields, error, occurred_at FROM import_operations WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []OperationRecord
	for rows.Next() {
		var (
			op                                 OperationRecord
			parentID, remoteID, fields, errMsg sql.NullString
			occurredAt                         string
		)
		if err := rows.Scan(&op.RunID, &op.Seq, &op.Kind, &op.Path, &op.Handle, &parentID, &remoteID, &fields, &errMsg, &occurredAt); err != nil {
			return nil, err
		}
		op.ParentID = parentID.String
		op.RemoteID = remoteID.String
		op.Fields = fields.String
		op.Error = errMsg.String
		op.OccurredAt = parseTimestamp(occurredAt)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ops, nil
}

// GetStats aggregates non-dry runs per project.
func (d *DB) GetStats(ctx context.Context) ([]ProjectStats, error) {
	query := `
		SELECT
			project_id,
			COUNT(*),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
			SUM(groups_created),
			SUM(products_created),
			SUM(products_updated),
			MAX(started_at)
		FROM
			import_runs
		WHERE
			dry_run = 0
		GROUP BY
			project_id
		ORDER BY
			project_id;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []ProjectStats
	for rows.Next() {
		var (
			s    ProjectStats
			last string
		)
		if err := rows.Scan(&s.ProjectID, &s.Runs, &s.FailedRuns, &s.GroupsCreated, &s.ProductsCreated, &s.ProductsUpdated, &last); err != nil {
			return nil, err
		}
		s.LastRunAt = parseTimestamp(last)
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r                Run
		started          string
		finished, errMsg sql.NullString
		dryRun           int
	)
	err := s.Scan(&r.ID, &started, &finished, &r.ProjectID, &r.SourceFile, &dryRun, &r.Status,
		&r.Counts.GroupsCreated, &r.Counts.GroupsExisting, &r.Counts.ProductsCreated, &r.Counts.ProductsUpdated,
		&r.Counts.ProductsUnchanged, &r.Counts.Conflicts, &r.Executed, &errMsg)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = parseTimestamp(started)
	if finished.Valid {
		r.FinishedAt = parseTimestamp(finished.String)
	}
	r.DryRun = dryRun == 1
	r.Error = errMsg.String
	return r, nil
}

// parseTimestamp reads SQLite CURRENT_TIMESTAMP values, falling back to
// RFC3339.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// likePrefix matches s literally as a prefix in a LIKE ... ESCAPE '\' clause.
func likePrefix(s string) string {
	return likeEscaper.Replace(s) + "%"
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
