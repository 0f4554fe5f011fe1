// Package analyzer prepares and executes the external feature-extraction
// command.
//
// The argument vector is resolved once at enqueue time (BuildPlan) and the
// CommandRunner later executes it verbatim, capturing stdout/stderr and
// reporting spawn failures in the result rather than as errors. Cancellation
// terminates the whole process group, escalating from SIGTERM to SIGKILL
// after a short grace window.
package analyzer
