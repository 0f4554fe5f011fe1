package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue job.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// UserStopReason is the error message set when a user stops the queue.
const UserStopReason = "Stopped by user"

// InterruptedReason is the error message set when a job was still running
// during a previous session. A restarted process cannot own a live
// subprocess, so the state is definitionally stale.
const InterruptedReason = "Interrupted during previous session"

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusDone,
	StatusFailed,
	StatusCanceled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Job represents one analysis task persisted in SQLite.
//
// ID, SourcePath, the prepared CommandArgs, and OutputPath are fixed at
// enqueue time so re-runs are deterministic; Status, Attempts, ErrorMessage,
// and the timestamps mutate through the lifecycle.
type Job struct {
	ID          int64
	SourcePath  string
	DisplayName string
	Status      Status

	// Group fields tie jobs produced from one dropped folder together.
	// They are presentation metadata only; the engine ignores them.
	GroupID   string
	GroupName string
	GroupRoot string

	CommandArgs []string
	OutputPath  string
	SidecarPath string

	Attempts     int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status is terminal. Only canceled jobs can
// leave a terminal state, via ResumeCanceled.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Progress derives a coarse completion fraction from status.
func (j Job) Progress() float64 {
	switch j.Status {
	case StatusPending:
		return 0.0
	case StatusRunning:
		return 0.5
	default:
		return 1.0
	}
}

// SetFailed marks the job failed with the given error message.
func (j *Job) SetFailed(message string) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.FinishedAt = &now
}

// OutboxEntry is one pending hand-off of a finished artifact to ingestion.
type OutboxEntry struct {
	ID          int64
	FilePath    string
	JobID       int64
	Attempts    int
	LastFailure *time.Time
	LastError   string
	CreatedAt   time.Time
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total    int
	Pending  int
	Running  int
	Done     int
	Failed   int
	Canceled int
}
