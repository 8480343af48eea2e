package daemonctl

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"bookture/internal/api"
	"bookture/internal/config"
	"bookture/internal/jobs"
)

// Severity levels for status checks.
const (
	SeverityOK    = "ok"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// Check is one line of the status report.
type Check struct {
	Name     string
	Severity string
	Detail   string
}

// Snapshot combines the daemon's own report with local configuration checks.
// When the daemon is offline the job counts come straight from the database.
type Snapshot struct {
	Daemon  api.DaemonStatus
	Offline bool
	Checks  []Check
}

// BuildStatusSnapshot queries the daemon and applies offline fallbacks.
func BuildStatusSnapshot(ctx context.Context, client *api.Client, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snapshot := &Snapshot{}
	status, err := client.Status(ctx)
	if err == nil && status != nil {
		snapshot.Daemon = *status
	} else {
		snapshot.Offline = true
		snapshot.Daemon.Bind = cfg.API.Bind
		snapshot.Daemon.LockFilePath = cfg.LockPath()
		offlineDatabase(ctx, cfg, &snapshot.Daemon)
	}
	snapshot.Checks = BuildSystemChecks(cfg, snapshot.Daemon)
	return snapshot, nil
}

func offlineDatabase(ctx context.Context, cfg *config.Config, status *api.DaemonStatus) {
	status.Database.Path = cfg.DatabasePath()
	if _, err := os.Stat(cfg.DatabasePath()); err != nil {
		status.Database.Error = "database not created yet"
		return
	}
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	store, err := jobs.Open(cfg)
	if err != nil {
		status.Database.Error = err.Error()
		return
	}
	defer store.Close()

	if health, err := store.CheckHealth(queryCtx); err == nil {
		status.Database = api.FromDatabaseHealth(health)
	} else {
		status.Database.Error = err.Error()
	}
	if counts, err := store.StageCounts(queryCtx); err == nil {
		status.Workflow.StageCounts = make(map[string]int, len(counts))
		for stg, count := range counts {
			status.Workflow.StageCounts[string(stg)] = count
		}
	}
}

// BuildSystemChecks resolves status lines that combine runtime state and
// configuration.
func BuildSystemChecks(cfg *config.Config, status api.DaemonStatus) []Check {
	checks := []Check{}

	if status.Running {
		checks = append(checks, Check{Name: "Daemon", Severity: SeverityOK, Detail: "listening on " + status.Bind})
	} else {
		checks = append(checks, Check{Name: "Daemon", Severity: SeverityWarn, Detail: "not running (start with 'bookture serve')"})
	}

	if err := cfg.ValidateCredentials(); err != nil {
		checks = append(checks, Check{Name: "Model credentials", Severity: SeverityError, Detail: err.Error()})
	} else {
		checks = append(checks, Check{Name: "Model credentials", Severity: SeverityOK, Detail: cfg.TextLLM().Model + ", " + cfg.ImageLLM().Model})
	}

	switch {
	case status.Database.Error != "":
		checks = append(checks, Check{Name: "Database", Severity: SeverityWarn, Detail: status.Database.Error})
	case !status.Database.IntegrityCheck:
		checks = append(checks, Check{Name: "Database", Severity: SeverityError, Detail: "integrity check failed"})
	default:
		checks = append(checks, Check{Name: "Database", Severity: SeverityOK, Detail: status.Database.Path})
	}

	for _, dir := range []struct{ name, path string }{
		{"Upload directory", cfg.Paths.UploadDir},
		{"Artifact directory", cfg.Paths.ArtifactDir},
		{"Log directory", cfg.Paths.LogDir},
	} {
		checks = append(checks, directoryCheck(dir.name, dir.path))
	}

	backend := strings.TrimSpace(cfg.Broadcast.Backend)
	if backend == "" {
		backend = "memory"
	}
	checks = append(checks, Check{Name: "Progress channel", Severity: SeverityOK, Detail: backend})

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		checks = append(checks, Check{Name: "Notifications", Severity: SeverityWarn, Detail: "ntfy topic not configured"})
	} else {
		checks = append(checks, Check{Name: "Notifications", Severity: SeverityOK, Detail: cfg.Notifications.NtfyTopic})
	}
	return checks
}

func directoryCheck(name, path string) Check {
	if strings.TrimSpace(path) == "" {
		return Check{Name: name, Severity: SeverityError, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Check{Name: name, Severity: SeverityWarn, Detail: path + " (created on first start)"}
	case err != nil:
		return Check{Name: name, Severity: SeverityError, Detail: err.Error()}
	case !info.IsDir():
		return Check{Name: name, Severity: SeverityError, Detail: path + " is not a directory"}
	}
	return Check{Name: name, Severity: SeverityOK, Detail: path}
}

// Summary returns the worst severity among checks.
func Summary(checks []Check) string {
	worst := SeverityOK
	for _, check := range checks {
		switch check.Severity {
		case SeverityError:
			return SeverityError
		case SeverityWarn:
			worst = SeverityWarn
		}
	}
	return worst
}
