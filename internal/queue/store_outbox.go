package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// OutboxEnqueue inserts a hand-off entry for a finished artifact. Enqueue is
// idempotent by file path: at most one entry ever exists per path.
func (s *Store) OutboxEnqueue(ctx context.Context, filePath string, jobID int64) (*OutboxEntry, error) {
	if filePath == "" {
		return nil, errors.New("file path required")
	}
	timestamp := formatTimestamp(s.now())
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO outbox_entries (file_path, job_id, attempts, created_at)
         VALUES (?, ?, 0, ?)
         ON CONFLICT(file_path) DO NOTHING`,
		filePath,
		jobID,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("enqueue outbox entry: %w", err)
	}
	return s.outboxByPath(ctx, filePath)
}

func (s *Store) outboxByPath(ctx context.Context, filePath string) (*OutboxEntry, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+outboxColumns+` FROM outbox_entries WHERE file_path = ?`,
		filePath,
	)
	entry, err := scanOutboxEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get outbox entry: %w", err)
	}
	return entry, nil
}

// OutboxNextPending returns one eligible entry, or nil when none is eligible.
// Eligible means attempts below the configured maximum and, after a failure,
// the fixed backoff window has elapsed. Entries past the attempt limit stay
// in place so their failure is inspectable, but are never returned again.
func (s *Store) OutboxNextPending(ctx context.Context) (*OutboxEntry, error) {
	// Fixed-width timestamps make the string comparison below equivalent
	// to comparing instants.
	cutoff := formatTimestamp(s.now().Add(-s.outboxBackoff))
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+outboxColumns+` FROM outbox_entries
         WHERE attempts < ? AND (last_failure IS NULL OR last_failure <= ?)
         ORDER BY id LIMIT 1`,
		s.outboxMaxAttempts,
		cutoff,
	)
	entry, err := scanOutboxEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next outbox entry: %w", err)
	}
	return entry, nil
}

// OutboxMarkFailure records a failed hand-off attempt.
func (s *Store) OutboxMarkFailure(ctx context.Context, id int64, ingestErr error) error {
	message := ""
	if ingestErr != nil {
		message = ingestErr.Error()
	}
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE outbox_entries
         SET attempts = attempts + 1, last_failure = ?, last_error = ?
         WHERE id = ?`,
		formatTimestamp(s.now()),
		nullableString(message),
		id,
	); err != nil {
		return fmt.Errorf("mark outbox failure: %w", err)
	}
	return nil
}

// OutboxMarkSuccess removes a delivered entry.
func (s *Store) OutboxMarkSuccess(ctx context.Context, id int64) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM outbox_entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark outbox success: %w", err)
	}
	return nil
}

// OutboxList returns every entry, including abandoned ones, in insert order.
func (s *Store) OutboxList(ctx context.Context) ([]*OutboxEntry, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+outboxColumns+` FROM outbox_entries ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []*OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
