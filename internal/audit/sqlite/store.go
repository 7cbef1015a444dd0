// Package sqlite provides a SQLite-backed audit Store implementation. The
// queue and the execution log share one database file so a single engine
// instance keeps its full work history in one place.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"strata/internal/audit"
	"strata/internal/partition"
	"strata/internal/policy"
	"strata/internal/storage"
)

const timeFormat = time.RFC3339Nano

// Store is a SQLite-backed audit.Store implementation.
type Store struct {
	db   *sql.DB
	path string
}

var _ audit.Store = (*Store)(nil)

// NewStore opens a SQLite database at path and runs migrations.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create audit directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) UpsertEntry(ctx context.Context, e audit.QueueEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queue (id, policy_id, partition_id, dataset, priority, age_days, eligible, reason, status, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (policy_id, partition_id) DO UPDATE SET
			id = excluded.id,
			dataset = excluded.dataset,
			priority = excluded.priority,
			age_days = excluded.age_days,
			eligible = excluded.eligible,
			reason = excluded.reason,
			status = excluded.status,
			evaluated_at = excluded.evaluated_at`,
		e.ID.String(), e.PolicyID.String(), e.PartitionID.String(), e.Dataset,
		e.Priority, e.AgeDays, boolInt(e.Eligible), e.Reason,
		string(e.Status), e.EvaluatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("upsert queue entry: %w", err)
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, policyID uuid.UUID, partitionID partition.ID) (*audit.QueueEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, policy_id, partition_id, dataset, priority, age_days, eligible, reason, status, evaluated_at
		FROM queue WHERE policy_id = ? AND partition_id = ?`,
		policyID.String(), partitionID.String())
	e, err := scanQueueEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return e, nil
}

func (s *Store) ListPending(ctx context.Context) ([]audit.QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, policy_id, partition_id, dataset, priority, age_days, eligible, reason, status, evaluated_at
		FROM queue WHERE status = ? AND eligible = 1
		ORDER BY priority ASC, age_days DESC, id ASC`,
		string(audit.QueuePending))
	if err != nil {
		return nil, fmt.Errorf("list pending entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue entries: %w", err)
	}
	return entries, nil
}

func (s *Store) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue SET status = ? WHERE id = ? AND status = ?`,
		string(audit.QueueExecuted), id.String(), string(audit.QueuePending))
	if err != nil {
		return false, fmt.Errorf("claim queue entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim queue entry: %w", err)
	}
	return n == 1, nil
}

func (s *Store) MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queue SET status = ?, reason = ? WHERE id = ?`,
		string(audit.QueueSkipped), reason, id.String())
	if err != nil {
		return fmt.Errorf("mark queue entry skipped: %w", err)
	}
	return nil
}

func (s *Store) PurgeQueue(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM queue WHERE status != ? AND evaluated_at < ?`,
		string(audit.QueuePending), olderThan.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("purge queue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge queue: %w", err)
	}
	return int(n), nil
}

func (s *Store) BeginLog(ctx context.Context, e audit.LogEntry) error {
	if e.Status != audit.LogRunning {
		return fmt.Errorf("begin log entry: status must be %s, got %s", audit.LogRunning, e.Status)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO log (id, policy_id, partition_id, dataset, action, before_bytes, after_bytes,
			before_location, after_location, status, error_kind, error, started_at, finished_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', 0)`,
		e.ID.String(), e.PolicyID.String(), e.PartitionID.String(), e.Dataset, string(e.Action),
		e.BeforeBytes, e.AfterBytes, e.BeforeLocation, e.AfterLocation,
		string(e.Status), string(e.ErrorKind), e.Error,
		e.StartedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("begin log entry: %w", err)
	}
	return nil
}

func (s *Store) FinishLog(ctx context.Context, e audit.LogEntry) error {
	if e.Status != audit.LogSuccess && e.Status != audit.LogFailed {
		return fmt.Errorf("finish log entry: status must be terminal, got %s", e.Status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE log SET status = ?, error_kind = ?, error = ?, after_bytes = ?, after_location = ?,
			finished_at = ?, duration_ms = ?
		WHERE id = ? AND status = ?`,
		string(e.Status), string(e.ErrorKind), e.Error, e.AfterBytes, e.AfterLocation,
		e.FinishedAt.UTC().Format(timeFormat), e.Duration.Milliseconds(),
		e.ID.String(), string(audit.LogRunning))
	if err != nil {
		return fmt.Errorf("finish log entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish log entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish log entry %s: not running", e.ID)
	}
	return nil
}

func (s *Store) LastLog(ctx context.Context, policyID uuid.UUID, partitionID partition.ID) (*audit.LogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, policy_id, partition_id, dataset, action, before_bytes, after_bytes,
			before_location, after_location, status, error_kind, error, started_at, finished_at, duration_ms
		FROM log WHERE policy_id = ? AND partition_id = ?
		ORDER BY started_at DESC, id DESC LIMIT 1`,
		policyID.String(), partitionID.String())
	e, err := scanLogEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last log entry: %w", err)
	}
	return e, nil
}

func (s *Store) QueryLog(ctx context.Context, f audit.LogFilter) ([]audit.LogEntry, error) {
	query := `
		SELECT id, policy_id, partition_id, dataset, action, before_bytes, after_bytes,
			before_location, after_location, status, error_kind, error, started_at, finished_at, duration_ms
		FROM log`
	var conds []string
	var args []any
	if f.Dataset != "" {
		conds = append(conds, "dataset = ?")
		args = append(args, f.Dataset)
	}
	if f.PolicyID != nil {
		conds = append(conds, "policy_id = ?")
		args = append(args, f.PolicyID.String())
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "started_at >= ?")
		args = append(args, f.Since.UTC().Format(timeFormat))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "started_at < ?")
		args = append(args, f.Until.UTC().Format(timeFormat))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query log: %w", err)
	}
	defer rows.Close()

	var entries []audit.LogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log entries: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueEntry(row rowScanner) (*audit.QueueEntry, error) {
	var (
		id, policyID, partitionID string
		dataset, reason, status   string
		priority, ageDays         int
		eligible                  int
		evaluatedAt               string
	)
	err := row.Scan(&id, &policyID, &partitionID, &dataset, &priority, &ageDays, &eligible, &reason, &status, &evaluatedAt)
	if err != nil {
		return nil, err
	}

	var e audit.QueueEntry
	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse entry id: %w", err)
	}
	if e.PolicyID, err = uuid.Parse(policyID); err != nil {
		return nil, fmt.Errorf("parse policy id: %w", err)
	}
	if e.PartitionID, err = partition.ParseID(partitionID); err != nil {
		return nil, fmt.Errorf("parse partition id: %w", err)
	}
	if e.EvaluatedAt, err = time.Parse(timeFormat, evaluatedAt); err != nil {
		return nil, fmt.Errorf("parse evaluated_at: %w", err)
	}
	e.Dataset = dataset
	e.Priority = priority
	e.AgeDays = ageDays
	e.Eligible = eligible != 0
	e.Reason = reason
	e.Status = audit.QueueStatus(status)
	return &e, nil
}

func scanLogEntry(row rowScanner) (*audit.LogEntry, error) {
	var (
		id, policyID, partitionID     string
		dataset, action               string
		beforeBytes, afterBytes       int64
		beforeLocation, afterLocation string
		status, errorKind, errorText  string
		startedAt, finishedAt         string
		durationMs                    int64
	)
	err := row.Scan(&id, &policyID, &partitionID, &dataset, &action, &beforeBytes, &afterBytes,
		&beforeLocation, &afterLocation, &status, &errorKind, &errorText, &startedAt, &finishedAt, &durationMs)
	if err != nil {
		return nil, err
	}

	var e audit.LogEntry
	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse entry id: %w", err)
	}
	if e.PolicyID, err = uuid.Parse(policyID); err != nil {
		return nil, fmt.Errorf("parse policy id: %w", err)
	}
	if e.PartitionID, err = partition.ParseID(partitionID); err != nil {
		return nil, fmt.Errorf("parse partition id: %w", err)
	}
	if e.StartedAt, err = time.Parse(timeFormat, startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt != "" {
		if e.FinishedAt, err = time.Parse(timeFormat, finishedAt); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	e.Dataset = dataset
	e.Action = policy.Action(action)
	e.BeforeBytes = beforeBytes
	e.AfterBytes = afterBytes
	e.BeforeLocation = beforeLocation
	e.AfterLocation = afterLocation
	e.Status = audit.LogStatus(status)
	e.ErrorKind = storage.ErrorKind(errorKind)
	e.Error = errorText
	e.Duration = time.Duration(durationMs) * time.Millisecond
	return &e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
