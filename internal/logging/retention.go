package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names a directory whose files matching Pattern are pruned
// once they age out. Paths in Exclude are never removed.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// LogTargets returns the retention targets for a log directory: rotated
// daemon logs at the top level and per-job logs under jobDir. The active
// daemon log is excluded.
func LogTargets(logDir, jobDir string) []RetentionTarget {
	logDir = strings.TrimSpace(logDir)
	if logDir == "" {
		return nil
	}
	targets := []RetentionTarget{{
		Dir:     logDir,
		Pattern: "*.log",
		Exclude: []string{filepath.Join(logDir, LogFileName)},
	}}
	if jobDir = strings.TrimSpace(jobDir); jobDir != "" {
		targets = append(targets, RetentionTarget{Dir: filepath.Join(logDir, jobDir), Pattern: "*.log"})
	}
	return targets
}

// CleanupOldLogs deletes target files last modified more than retentionDays
// ago and reports how many went. retentionDays <= 0 keeps everything.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 || len(targets) == 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	skip := excludedPaths(targets)

	removed := 0
	for _, target := range targets {
		for _, path := range expiredFiles(target, cutoff) {
			if _, ok := skip[path]; ok {
				continue
			}
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "old log not removed", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check ownership of paths.log_dir"),
					String(FieldImpact, "the file stays on disk until the next cleanup"),
				)
				continue
			}
			removed++
			if logger != nil {
				logger.Debug("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
			}
		}
	}
	if removed > 0 && logger != nil {
		logger.Info("old logs pruned",
			Int("removed", removed),
			Int("retention_days", retentionDays),
			String(FieldEventType, "log_retention_complete"),
		)
	}
	return removed
}

func excludedPaths(targets []RetentionTarget) map[string]struct{} {
	out := make(map[string]struct{})
	for _, target := range targets {
		for _, path := range target.Exclude {
			if path = strings.TrimSpace(path); path == "" {
				continue
			}
			out[absPath(path)] = struct{}{}
		}
	}
	return out
}

// expiredFiles lists absolute paths in target modified before cutoff. An
// unreadable directory yields nothing.
func expiredFiles(target RetentionTarget, cutoff time.Time) []string {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	pattern := strings.TrimSpace(target.Pattern)
	var out []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if pattern != "" {
			if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
				continue
			}
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		out = append(out, absPath(filepath.Join(dir, entry.Name())))
	}
	return out
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
