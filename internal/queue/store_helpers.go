package queue

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"
)

// timestampLayout is RFC 3339 with fixed-width nanoseconds. RFC3339Nano
// trims trailing fractional zeros, so two stored timestamps would not
// compare lexicographically in time order; the outbox backoff cutoff
// relies on string comparison in SQL.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

const jobColumns = "id, source_path, display_name, status, group_id, group_name, group_root, command_json, output_path, sidecar_path, attempts, error_message, created_at, updated_at, started_at, finished_at"

const outboxColumns = "id, file_path, job_id, attempts, last_failure, last_error, created_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id          int64
		sourcePath  string
		displayName sql.NullString
		statusStr   string
		groupID     sql.NullString
		groupName   sql.NullString
		groupRoot   sql.NullString
		commandJSON sql.NullString
		outputPath  sql.NullString
		sidecarPath sql.NullString
		attempts    sql.NullInt64
		errMessage  sql.NullString
		createdRaw  string
		updatedRaw  string
		startedRaw  sql.NullString
		finishedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourcePath,
		&displayName,
		&statusStr,
		&groupID,
		&groupName,
		&groupRoot,
		&commandJSON,
		&outputPath,
		&sidecarPath,
		&attempts,
		&errMessage,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		SourcePath:   sourcePath,
		DisplayName:  displayName.String,
		Status:       Status(statusStr),
		GroupID:      groupID.String,
		GroupName:    groupName.String,
		GroupRoot:    groupRoot.String,
		OutputPath:   outputPath.String,
		SidecarPath:  sidecarPath.String,
		Attempts:     int(attempts.Int64),
		ErrorMessage: errMessage.String,
		CreatedAt:    parseTimestamp(createdRaw),
		UpdatedAt:    parseTimestamp(updatedRaw),
		StartedAt:    parseNullableTimestamp(startedRaw),
		FinishedAt:   parseNullableTimestamp(finishedRaw),
	}
	if commandJSON.Valid && commandJSON.String != "" {
		if err := json.Unmarshal([]byte(commandJSON.String), &job.CommandArgs); err != nil {
			return nil, err
		}
	}
	return job, nil
}

func scanOutboxEntry(scanner interface{ Scan(dest ...any) error }) (*OutboxEntry, error) {
	var (
		id         int64
		filePath   string
		jobID      sql.NullInt64
		attempts   sql.NullInt64
		failureRaw sql.NullString
		lastError  sql.NullString
		createdRaw string
	)

	if err := scanner.Scan(&id, &filePath, &jobID, &attempts, &failureRaw, &lastError, &createdRaw); err != nil {
		return nil, err
	}

	return &OutboxEntry{
		ID:          id,
		FilePath:    filePath,
		JobID:       jobID.Int64,
		Attempts:    int(attempts.Int64),
		LastFailure: parseNullableTimestamp(failureRaw),
		LastError:   lastError.String,
		CreatedAt:   parseTimestamp(createdRaw),
	}, nil
}

func marshalCommand(args []string) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTimestamp(*value)
}

func parseTimestamp(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func parseNullableTimestamp(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", count), ", ")
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return args
}
