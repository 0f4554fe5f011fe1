package analyzer

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"waveline/internal/config"
)

// BuildPlan resolves the full analyzer argument vector for one source file.
// The plan is computed once at enqueue time so re-runs are deterministic
// even if configuration changes later.
func BuildPlan(cfg config.Analyzer, sourcePath, outputPath string) []string {
	args := make([]string, 0, len(cfg.ExtraArgs)+3)
	args = append(args, cfg.Binary)
	args = append(args, cfg.ExtraArgs...)
	args = append(args, sourcePath, outputPath)
	return args
}

// DisplayName derives a human-readable title from a source filename.
func DisplayName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.NewReplacer("_", " ", ".", " ", "-", " ").Replace(stem)
	stem = strings.Join(strings.Fields(stem), " ")
	if stem == "" {
		return base
	}
	return cases.Title(language.Und).String(stem)
}
