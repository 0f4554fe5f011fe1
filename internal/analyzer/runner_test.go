package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"waveline/internal/config"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "analyzer-stub")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestRunCapturesOutput(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\necho analyzed \"$1\"\nexit 0\n")
	runner := NewCommandRunner(config.Analyzer{})

	result := runner.Run(context.Background(), []string{script, "/inbox/track.flac", "/artifacts/track.json"})
	if result.Failed() {
		t.Fatalf("expected success, got %#v", result)
	}
	if !strings.Contains(result.Stdout, "analyzed /inbox/track.flac") {
		t.Fatalf("stdout not captured: %q", result.Stdout)
	}
}

func TestRunReportsNonZeroExit(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\necho 'decode error' >&2\nexit 3\n")
	runner := NewCommandRunner(config.Analyzer{})

	result := runner.Run(context.Background(), []string{script, "in", "out"})
	if !result.Failed() {
		t.Fatal("expected failure for non-zero exit")
	}
	if result.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", result.ExitCode)
	}
	msg := result.FailureMessage()
	if !strings.Contains(msg, "code 3") || !strings.Contains(msg, "decode error") {
		t.Fatalf("failure message should carry exit detail, got %q", msg)
	}
}

func TestRunReportsSpawnError(t *testing.T) {
	runner := NewCommandRunner(config.Analyzer{})

	result := runner.Run(context.Background(), []string{filepath.Join(t.TempDir(), "missing-binary")})
	if result.SpawnErr == nil {
		t.Fatal("expected spawn error for missing executable")
	}
	if !result.Failed() {
		t.Fatal("spawn error must count as failure")
	}
	if !strings.Contains(result.FailureMessage(), "failed to start analyzer") {
		t.Fatalf("unexpected failure message %q", result.FailureMessage())
	}
}

func TestRunCancellationTerminatesProcess(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\nsleep 30\n")
	runner := NewCommandRunner(config.Analyzer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() {
		done <- runner.Run(ctx, []string{script})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case result := <-done:
		if !result.Failed() {
			t.Fatalf("canceled run should fail, got %#v", result)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("canceled process did not terminate within grace window")
	}
}

func TestBuildPlanOrdersArguments(t *testing.T) {
	plan := BuildPlan(config.Analyzer{
		Binary:    "extractor",
		ExtraArgs: []string{"--profile", "music"},
	}, "/inbox/track.flac", "/artifacts/track.json")

	want := []string{"extractor", "--profile", "music", "/inbox/track.flac", "/artifacts/track.json"}
	if len(plan) != len(want) {
		t.Fatalf("unexpected plan %#v", plan)
	}
	for i := range want {
		if plan[i] != want[i] {
			t.Fatalf("plan[%d] = %q, want %q", i, plan[i], want[i])
		}
	}
}

func TestDisplayName(t *testing.T) {
	cases := map[string]string{
		"/inbox/my_track.flac":    "My Track",
		"/inbox/album-song.wav":   "Album Song",
		"/inbox/Already Nice.mp3": "Already Nice",
	}
	for input, want := range cases {
		if got := DisplayName(input); got != want {
			t.Fatalf("DisplayName(%q) = %q, want %q", input, got, want)
		}
	}
}
