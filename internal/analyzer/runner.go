package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"waveline/internal/config"
)

// Result captures the outcome of one analyzer invocation. A spawn failure
// (missing executable, permission denied) is reported in SpawnErr rather
// than returned, so callers treat it like any other failed run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	SpawnErr error
}

// Failed reports whether the run must be treated as a failure.
func (r Result) Failed() bool {
	return r.SpawnErr != nil || r.ExitCode != 0
}

// FailureMessage returns a short human-readable reason for a failed run.
func (r Result) FailureMessage() string {
	if r.SpawnErr != nil {
		return fmt.Sprintf("failed to start analyzer: %v", r.SpawnErr)
	}
	if r.ExitCode == 0 {
		return ""
	}
	detail := strings.TrimSpace(r.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(r.Stdout)
	}
	if detail != "" {
		if idx := strings.LastIndexByte(detail, '\n'); idx >= 0 {
			detail = strings.TrimSpace(detail[idx+1:])
		}
		return fmt.Sprintf("analyzer exited with code %d: %s", r.ExitCode, detail)
	}
	return fmt.Sprintf("analyzer exited with code %d", r.ExitCode)
}

// killGrace is how long a canceled process gets to exit after SIGTERM
// before it is forcibly killed.
const killGrace = 500 * time.Millisecond

// CommandRunner executes the external analysis command.
type CommandRunner struct {
	timeout time.Duration
	grace   time.Duration
}

// NewCommandRunner constructs a runner with the configured per-run timeout.
func NewCommandRunner(cfg config.Analyzer) *CommandRunner {
	return &CommandRunner{
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		grace:   killGrace,
	}
}

// Run executes the prepared argument vector and blocks until the process
// exits, the context is canceled, or spawning fails. Cancellation sends
// SIGTERM to the process group and escalates to SIGKILL after the grace
// window.
func (r *CommandRunner) Run(ctx context.Context, args []string) Result {
	if len(args) == 0 {
		return Result{ExitCode: -1, SpawnErr: errors.New("empty command")}
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Cancel = func() error {
		return signalGroup(cmd, unix.SIGTERM)
	}
	cmd.WaitDelay = r.grace

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1, SpawnErr: err}
	}

	err := cmd.Wait()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if state := cmd.ProcessState; state != nil {
		result.ExitCode = state.ExitCode()
	}
	if err != nil && result.ExitCode == 0 {
		// Wait failed without an exit code (I/O error, forced kill).
		result.ExitCode = -1
		result.Stderr = strings.TrimSpace(result.Stderr + "\n" + err.Error())
	}
	return result
}

func signalGroup(cmd *exec.Cmd, sig unix.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	// Negative pid addresses the whole process group created by Setpgid.
	if err := unix.Kill(-cmd.Process.Pid, sig); err != nil {
		return cmd.Process.Signal(sig)
	}
	return nil
}
