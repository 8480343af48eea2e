package jobs

import (
	"strings"
	"time"
)

// Stage represents the lifecycle position of a job.
type Stage string

const (
	StageUploaded          Stage = "uploaded"
	StageShredding         Stage = "shredding"
	StageAnalyzing         Stage = "analyzing"
	StageGeneratingCover   Stage = "generating_cover"
	StageGeneratingPrompts Stage = "generating_prompts"
	StageGeneratingImages  Stage = "generating_images"
	StageCompleted         Stage = "completed"
	StageError             Stage = "error"
	StageResuming          Stage = "resuming"
)

// forwardOrder is the declared pipeline order. Error and Resuming sit outside it.
var forwardOrder = []Stage{
	StageUploaded,
	StageShredding,
	StageAnalyzing,
	StageGeneratingCover,
	StageGeneratingPrompts,
	StageGeneratingImages,
	StageCompleted,
}

var stageRank = func() map[Stage]int {
	ranks := make(map[Stage]int, len(forwardOrder))
	for i, stage := range forwardOrder {
		ranks[stage] = i
	}
	return ranks
}()

var activeStages = map[Stage]struct{}{
	StageShredding:         {},
	StageAnalyzing:         {},
	StageGeneratingCover:   {},
	StageGeneratingPrompts: {},
	StageGeneratingImages:  {},
}

// AllStages lists every stage value, forward order first.
func AllStages() []Stage {
	out := make([]Stage, 0, len(forwardOrder)+2)
	out = append(out, forwardOrder...)
	return append(out, StageError, StageResuming)
}

// ActiveStages lists the stages during which a runner is working on the job.
func ActiveStages() []Stage {
	return []Stage{StageShredding, StageAnalyzing, StageGeneratingCover, StageGeneratingPrompts, StageGeneratingImages}
}

// ParseStage converts a string into a Stage if recognised.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := stageRank[normalized]; ok {
		return normalized, true
	}
	if normalized == StageError || normalized == StageResuming {
		return normalized, true
	}
	return "", false
}

// Rank returns the position in the forward order, or -1 for Error and Resuming.
func (s Stage) Rank() int {
	if rank, ok := stageRank[s]; ok {
		return rank
	}
	return -1
}

// IsActive reports whether a stage runner owns the job in this stage.
func (s Stage) IsActive() bool {
	_, ok := activeStages[s]
	return ok
}

// IsTerminal reports whether the pipeline stopped (Completed or Error).
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageError
}

// CanTransition reports whether a job in stage s may move to stage to.
//
// Forward moves (including staying put) are allowed along the declared order.
// Any non-terminal stage may fail into Error. Resuming is entered from Error,
// Uploaded, an orphaned active stage, or Resuming itself, and leaves toward
// any working stage or Completed. Nothing moves backward otherwise.
func (s Stage) CanTransition(to Stage) bool {
	if to.Rank() < 0 && to != StageError && to != StageResuming {
		return false
	}
	switch s {
	case StageCompleted:
		return to == StageCompleted
	case StageError:
		return to == StageError || to == StageResuming
	case StageResuming:
		return to != StageUploaded
	}
	if s.Rank() < 0 {
		return false
	}
	switch to {
	case StageError, StageResuming:
		return true
	}
	return to.Rank() >= s.Rank()
}

// UnitStatus tracks a unit through prompt and image generation.
type UnitStatus string

const (
	UnitPending    UnitStatus = "pending"
	UnitProcessing UnitStatus = "processing"
	UnitCompleted  UnitStatus = "completed"
	UnitFailed     UnitStatus = "failed"
)

// StyleGuide is the derived global context steering every per-unit generation call.
type StyleGuide struct {
	ArtStyle   string `json:"artStyle"`
	Characters string `json:"characters"`
	Setting    string `json:"setting"`
	Title      string `json:"title,omitempty"`
	Author     string `json:"author,omitempty"`
}

// Complete reports whether the guide carries the fields later stages depend on.
func (g *StyleGuide) Complete() bool {
	return g != nil && strings.TrimSpace(g.ArtStyle) != "" && strings.TrimSpace(g.Characters) != ""
}

// Job represents one document moving through the illustration pipeline.
type Job struct {
	ID                string
	OwnerID           string
	Title             string
	TitleKey          string
	SourcePath        string
	Stage             Stage
	Progress          int
	TotalUnits        int
	StyleGuide        *StyleGuide
	CoverRef          string
	CharacterSheetRef string
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsDone reports whether the job needs no further work.
func (j *Job) IsDone() bool {
	return j != nil && (j.Stage == StageCompleted || j.Progress >= 100)
}

// HasGeneratedCover reports whether the cover was produced by the pipeline
// rather than left at the placeholder assigned on creation.
func (j *Job) HasGeneratedCover(placeholder string) bool {
	if j == nil {
		return false
	}
	cover := strings.TrimSpace(j.CoverRef)
	return cover != "" && cover != strings.TrimSpace(placeholder)
}

// Unit is one page of the source document.
type Unit struct {
	JobID        string
	Ordinal      int
	Content      string
	Prompt       string
	Summary      string
	ArtifactRef  string
	Status       UnitStatus
	ErrorMessage string
	UpdatedAt    time.Time
}

// LibraryEntry links a job into its owner's library.
type LibraryEntry struct {
	Job      *Job
	AddedAt  time.Time
	Favorite bool
}

// NewJob describes a job to create.
type NewJob struct {
	OwnerID    string
	Title      string
	SourcePath string
	CoverRef   string
}

// DatabaseHealth captures diagnostic information about the jobs database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	MissingTables    []string
	IntegrityCheck   bool
	TotalJobs        int
	TotalUnits       int
	Error            string
}
