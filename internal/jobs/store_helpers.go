package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const jobColumns = "id, owner_id, title, title_key, source_path, stage, progress, total_units, style_guide_json, cover_ref, character_sheet_ref, error_message, created_at, updated_at"

const unitColumns = "job_id, ordinal, content, prompt, summary, artifact_ref, status, error_message, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job            Job
		stage          string
		styleGuideJSON sql.NullString
		coverRef       sql.NullString
		sheetRef       sql.NullString
		errorMessage   sql.NullString
		createdRaw     string
		updatedRaw     string
	)
	if err := scanner.Scan(
		&job.ID,
		&job.OwnerID,
		&job.Title,
		&job.TitleKey,
		&job.SourcePath,
		&stage,
		&job.Progress,
		&job.TotalUnits,
		&styleGuideJSON,
		&coverRef,
		&sheetRef,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job.Stage = Stage(stage)
	job.CoverRef = coverRef.String
	job.CharacterSheetRef = sheetRef.String
	job.ErrorMessage = errorMessage.String
	if styleGuideJSON.Valid && styleGuideJSON.String != "" {
		var guide StyleGuide
		if err := json.Unmarshal([]byte(styleGuideJSON.String), &guide); err == nil {
			job.StyleGuide = &guide
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return &job, nil
}

func scanUnit(scanner rowScanner) (Unit, error) {
	var (
		unit         Unit
		prompt       sql.NullString
		summary      sql.NullString
		artifactRef  sql.NullString
		status       string
		errorMessage sql.NullString
		updatedRaw   string
	)
	if err := scanner.Scan(
		&unit.JobID,
		&unit.Ordinal,
		&unit.Content,
		&prompt,
		&summary,
		&artifactRef,
		&status,
		&errorMessage,
		&updatedRaw,
	); err != nil {
		return Unit{}, err
	}
	unit.Prompt = prompt.String
	unit.Summary = summary.String
	unit.ArtifactRef = artifactRef.String
	unit.Status = UnitStatus(status)
	unit.ErrorMessage = errorMessage.String
	if updated, err := parseTimeString(updatedRaw); err == nil {
		unit.UpdatedAt = updated
	}
	return unit, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func stageArgs(stages []Stage) []any {
	args := make([]any, 0, len(stages))
	for _, stage := range stages {
		args = append(args, string(stage))
	}
	return args
}
