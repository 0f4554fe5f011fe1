package sidecar

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Resolver computes final and temporary artifact placement for jobs.
type Resolver struct {
	artifactDir string
	extension   string
}

// NewResolver constructs a resolver rooted at the application artifact
// directory. The extension is applied when a path must be synthesized.
func NewResolver(artifactDir, extension string) *Resolver {
	extension = strings.TrimSpace(extension)
	if extension == "" {
		extension = ".json"
	}
	if !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	return &Resolver{artifactDir: artifactDir, extension: extension}
}

// Resolve returns the final artifact path for a job along with a sibling
// temp path, guaranteeing the containing directory exists. When the
// prepared output path is empty, a path is synthesized from the source
// filename and a timestamp under the artifact directory.
func (r *Resolver) Resolve(preparedOutput, sourcePath string) (finalPath, tempPath string, err error) {
	finalPath = strings.TrimSpace(preparedOutput)
	if finalPath == "" {
		base := filepath.Base(sourcePath)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		if stem == "" {
			stem = "artifact"
		}
		stamp := time.Now().UTC().Format("20060102T150405")
		finalPath = filepath.Join(r.artifactDir, fmt.Sprintf("%s-%s%s", stem, stamp, r.extension))
	}

	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("ensure artifact directory %q: %w", dir, err)
	}

	tempPath = filepath.Join(dir, "."+filepath.Base(finalPath)+".partial-"+uuid.NewString())
	return finalPath, tempPath, nil
}

// Finalize promotes a temp artifact to its permanent location. It is
// idempotent and crash-safe: when the final path already exists the temp
// file is discarded and the first writer wins; otherwise the temp file is
// atomically renamed into place. A temp file that never materialized (for
// example when the analyzer wrote the final path directly) is not an error
// as long as the final artifact exists.
func (r *Resolver) Finalize(tempPath, finalPath string) error {
	if _, err := os.Stat(finalPath); err == nil {
		CleanupTemp(tempPath)
		return nil
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		if _, statErr := os.Stat(finalPath); statErr == nil {
			CleanupTemp(tempPath)
			return nil
		}
		return fmt.Errorf("finalize artifact: %w", err)
	}
	return nil
}

// CleanupTemp removes a temp file if present. Failures degrade disk
// hygiene, never correctness — Finalize re-checks existence before trusting
// a temp file — so errors are swallowed.
func CleanupTemp(tempPath string) {
	if strings.TrimSpace(tempPath) == "" {
		return
	}
	if err := os.Remove(tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return
	}
}
