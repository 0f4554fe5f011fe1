package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// NewJobParams carries the immutable fields fixed at enqueue time.
type NewJobParams struct {
	SourcePath  string
	DisplayName string
	GroupID     string
	GroupName   string
	GroupRoot   string
	CommandArgs []string
	OutputPath  string
}

// NewJob inserts a pending job with its prepared execution plan.
func (s *Store) NewJob(ctx context.Context, params NewJobParams) (*Job, error) {
	if params.SourcePath == "" {
		return nil, errors.New("source path required")
	}
	commandJSON, err := marshalCommand(params.CommandArgs)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}
	timestamp := formatTimestamp(s.now())

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            source_path, display_name, status, group_id, group_name, group_root,
            command_json, output_path, attempts, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		params.SourcePath,
		nullableString(params.DisplayName),
		StatusPending,
		nullableString(params.GroupID),
		nullableString(params.GroupName),
		nullableString(params.GroupRoot),
		commandJSON,
		nullableString(params.OutputPath),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. A missing job returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job unconditionally.
func (s *Store) Update(ctx context.Context, job *Job) error {
	_, err := s.persistJob(ctx, job, nil)
	return err
}

// UpdateIf persists changes only while the stored status still matches
// expected. The write is atomic: a transition raced in by another writer
// between the caller's read and this call leaves the row untouched and
// UpdateIf reports false.
func (s *Store) UpdateIf(ctx context.Context, job *Job, expected Status) (bool, error) {
	return s.persistJob(ctx, job, &expected)
}

func (s *Store) persistJob(ctx context.Context, job *Job, expected *Status) (bool, error) {
	if job == nil {
		return false, errors.New("job is nil")
	}
	commandJSON, err := marshalCommand(job.CommandArgs)
	if err != nil {
		return false, fmt.Errorf("marshal command: %w", err)
	}
	job.UpdatedAt = s.now().UTC()

	query := `UPDATE jobs
         SET source_path = ?, display_name = ?, status = ?, group_id = ?,
             group_name = ?, group_root = ?, command_json = ?, output_path = ?,
             sidecar_path = ?, attempts = ?, error_message = ?, updated_at = ?,
             started_at = ?, finished_at = ?
         WHERE id = ?`
	args := []any{
		job.SourcePath,
		nullableString(job.DisplayName),
		job.Status,
		nullableString(job.GroupID),
		nullableString(job.GroupName),
		nullableString(job.GroupRoot),
		commandJSON,
		nullableString(job.OutputPath),
		nullableString(job.SidecarPath),
		job.Attempts,
		nullableString(job.ErrorMessage),
		formatTimestamp(job.UpdatedAt),
		nullableTime(job.StartedAt),
		nullableTime(job.FinishedAt),
		job.ID,
	}
	if expected != nil {
		query += ` AND status = ?`
		args = append(args, *expected)
	}

	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update job: %w", err)
	}
	if expected == nil {
		return true, nil
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update job: %w", err)
	}
	return rows > 0, nil
}

// NextPending returns the oldest pending job, or nil when none remain.
func (s *Store) NextPending(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY id LIMIT 1`,
		StatusPending,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending job: %w", err)
	}
	return job, nil
}

// List returns jobs filtered by status set (or all jobs in enqueue order).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	ctx = ensureContext(ctx)
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, statusArgs(statuses)...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CancelPending marks every pending job canceled with the given reason.
func (s *Store) CancelPending(ctx context.Context, reason string) (int64, error) {
	return s.cancelByStatus(ctx, StatusPending, reason)
}

// CancelRunning marks any in-flight job canceled with the given reason. The
// worker re-checks status before committing a result, so a job canceled
// here keeps its canceled state even if its analyzer finishes.
func (s *Store) CancelRunning(ctx context.Context, reason string) (int64, error) {
	return s.cancelByStatus(ctx, StatusRunning, reason)
}

func (s *Store) cancelByStatus(ctx context.Context, from Status, reason string) (int64, error) {
	now := formatTimestamp(s.now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, error_message = ?, finished_at = ?, updated_at = ?
         WHERE status = ?`,
		StatusCanceled,
		reason,
		now,
		now,
		from,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel %s jobs: %w", from, err)
	}
	return res.RowsAffected()
}

// ResumeCanceled moves canceled jobs back to pending, clearing error
// message, timestamps, and attempt counter. Execution is not started.
func (s *Store) ResumeCanceled(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, error_message = NULL, attempts = 0,
             started_at = NULL, finished_at = NULL, updated_at = ?
         WHERE status = ?`,
		StatusPending,
		formatTimestamp(s.now()),
		StatusCanceled,
	)
	if err != nil {
		return 0, fmt.Errorf("resume canceled jobs: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes jobs in the given statuses. Running jobs are never removed.
func (s *Store) Clear(ctx context.Context, statuses ...Status) (int64, error) {
	filtered := make([]Status, 0, len(statuses))
	for _, status := range statuses {
		if status == StatusRunning {
			continue
		}
		filtered = append(filtered, status)
	}
	if len(filtered) == 0 {
		return 0, nil
	}

	placeholders := makePlaceholders(len(filtered))
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE status IN (`+placeholders+`)`,
		statusArgs(filtered)...,
	)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearAll removes every job that is not currently running.
func (s *Store) ClearAll(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status != ?`, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("clear all jobs: %w", err)
	}
	return res.RowsAffected()
}

// RecoverInterrupted normalizes jobs left running by a previous session to
// failed. Called automatically on Open.
func (s *Store) RecoverInterrupted(ctx context.Context) (int64, error) {
	now := formatTimestamp(s.now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, error_message = ?, finished_at = ?, updated_at = ?
         WHERE status = ?`,
		StatusFailed,
		InterruptedReason,
		now,
		now,
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("recover interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for status output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusRunning:
			health.Running += count
		case StatusDone:
			health.Done += count
		case StatusFailed:
			health.Failed += count
		case StatusCanceled:
			health.Canceled += count
		}
	}
	return health, nil
}
