package api

import (
	"slices"
	"strings"

	"bookture/internal/jobs"
	"bookture/internal/stage"
	"bookture/internal/workflow"
)

// FromJob converts a job record to its API representation.
func FromJob(job *jobs.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:                job.ID,
		OwnerID:           job.OwnerID,
		Title:             job.Title,
		Stage:             string(job.Stage),
		Progress:          job.Progress,
		TotalUnits:        job.TotalUnits,
		CoverURL:          strings.TrimSpace(job.CoverRef),
		CharacterSheetURL: strings.TrimSpace(job.CharacterSheetRef),
		ErrorMessage:      job.ErrorMessage,
	}
	if guide := job.StyleGuide; guide != nil {
		dto.StyleGuide = &StyleGuide{
			ArtStyle:   guide.ArtStyle,
			Characters: guide.Characters,
			Setting:    guide.Setting,
			Title:      guide.Title,
			Author:     guide.Author,
		}
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromUnits converts unit records, keeping their ordinal order.
func FromUnits(units []jobs.Unit) []Unit {
	out := make([]Unit, 0, len(units))
	for _, unit := range units {
		out = append(out, Unit{
			Ordinal:      unit.Ordinal,
			Status:       string(unit.Status),
			Prompt:       unit.Prompt,
			Summary:      unit.Summary,
			ImageURL:     unit.ArtifactRef,
			ErrorMessage: unit.ErrorMessage,
		})
	}
	return out
}

// FromLibrary converts library entries.
func FromLibrary(entries []jobs.LibraryEntry) []LibraryEntry {
	out := make([]LibraryEntry, 0, len(entries))
	for _, entry := range entries {
		dto := LibraryEntry{Job: FromJob(entry.Job), Favorite: entry.Favorite}
		if !entry.AddedAt.IsZero() {
			dto.AddedAt = entry.AddedAt.UTC().Format(dateTimeFormat)
		}
		out = append(out, dto)
	}
	return out
}

// FromDatabaseHealth converts store diagnostics.
func FromDatabaseHealth(health jobs.DatabaseHealth) DatabaseHealth {
	return DatabaseHealth{
		Path:           health.DBPath,
		SchemaVersion:  health.SchemaVersion,
		IntegrityCheck: health.IntegrityCheck,
		MissingTables:  health.MissingTables,
		TotalJobs:      health.TotalJobs,
		TotalUnits:     health.TotalUnits,
		Error:          health.Error,
	}
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	counts := make(map[string]int, len(summary.StageCounts))
	for stg, count := range summary.StageCounts {
		counts[string(stg)] = count
	}
	status := WorkflowStatus{
		ActiveJobs:  summary.ActiveJobs,
		StageCounts: counts,
		LastError:   summary.LastError,
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
	if status.ActiveJobs == nil {
		status.ActiveJobs = []string{}
	}
	if summary.LastJob != nil {
		last := FromJob(summary.LastJob)
		status.LastJob = &last
	}
	return status
}

// StageHealthSlice orders stage health by name.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for name, h := range health {
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	slices.SortFunc(out, func(a, b StageHealth) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}
