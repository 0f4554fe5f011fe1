// Package engine owns job execution. A single worker goroutine pulls the
// oldest pending job, runs the prepared analyzer command, and finalizes the
// artifact. Stop and resume act on queue state; the worker re-checks state
// after every run so a canceled job can never be completed late.
package engine
