package sidecar

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveUsesPreparedOutput(t *testing.T) {
	dir := t.TempDir()
	resolver := NewResolver(dir, ".json")

	prepared := filepath.Join(dir, "nested", "track.json")
	finalPath, tempPath, err := resolver.Resolve(prepared, "/inbox/track.flac")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if finalPath != prepared {
		t.Fatalf("expected prepared path %q, got %q", prepared, finalPath)
	}
	if filepath.Dir(tempPath) != filepath.Dir(finalPath) {
		t.Fatalf("temp path %q should be a sibling of %q", tempPath, finalPath)
	}
	if _, err := os.Stat(filepath.Dir(finalPath)); err != nil {
		t.Fatalf("containing directory should exist: %v", err)
	}
}

func TestResolveSynthesizesPath(t *testing.T) {
	dir := t.TempDir()
	resolver := NewResolver(dir, "json")

	finalPath, _, err := resolver.Resolve("", "/inbox/My Track.flac")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if filepath.Dir(finalPath) != dir {
		t.Fatalf("synthesized path should live under artifact dir, got %q", finalPath)
	}
	base := filepath.Base(finalPath)
	if !strings.HasPrefix(base, "My Track-") || !strings.HasSuffix(base, ".json") {
		t.Fatalf("unexpected synthesized name %q", base)
	}
}

func TestResolveTempPathsUnique(t *testing.T) {
	dir := t.TempDir()
	resolver := NewResolver(dir, ".json")

	prepared := filepath.Join(dir, "track.json")
	_, temp1, err := resolver.Resolve(prepared, "/inbox/track.flac")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	_, temp2, err := resolver.Resolve(prepared, "/inbox/track.flac")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if temp1 == temp2 {
		t.Fatalf("temp paths should be unique per attempt, both %q", temp1)
	}
}

func TestFinalizeMovesTempIntoPlace(t *testing.T) {
	dir := t.TempDir()
	resolver := NewResolver(dir, ".json")

	finalPath := filepath.Join(dir, "track.json")
	tempPath := filepath.Join(dir, ".track.json.partial")
	if err := os.WriteFile(tempPath, []byte(`{"bpm":128}`), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}

	if err := resolver.Finalize(tempPath, finalPath); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	data, err := os.ReadFile(finalPath)
	if err != nil {
		t.Fatalf("read final artifact: %v", err)
	}
	if string(data) != `{"bpm":128}` {
		t.Fatalf("unexpected artifact contents %q", data)
	}
	if _, err := os.Stat(tempPath); !os.IsNotExist(err) {
		t.Fatal("temp file should be gone after finalize")
	}
}

func TestFinalizeFirstWriterWins(t *testing.T) {
	dir := t.TempDir()
	resolver := NewResolver(dir, ".json")

	finalPath := filepath.Join(dir, "track.json")
	if err := os.WriteFile(finalPath, []byte("existing"), 0o644); err != nil {
		t.Fatalf("write final: %v", err)
	}
	tempPath := filepath.Join(dir, ".track.json.partial")
	if err := os.WriteFile(tempPath, []byte("late arrival"), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}

	if err := resolver.Finalize(tempPath, finalPath); err != nil {
		t.Fatalf("Finalize should not error when final exists: %v", err)
	}

	data, err := os.ReadFile(finalPath)
	if err != nil {
		t.Fatalf("read final artifact: %v", err)
	}
	if string(data) != "existing" {
		t.Fatalf("existing artifact must not be overwritten, got %q", data)
	}
	if _, err := os.Stat(tempPath); !os.IsNotExist(err) {
		t.Fatal("late temp file should be discarded")
	}
}

func TestCleanupTempMissingFileIsFine(t *testing.T) {
	CleanupTemp(filepath.Join(t.TempDir(), "never-existed"))
	CleanupTemp("")
}
