package workflow

import (
	"context"

	"bookture/internal/jobs"
	"bookture/internal/stage"
)

// StageSet bundles the concrete stage handlers the manager orchestrates.
type StageSet struct {
	Shredder    stage.Handler
	Analyzer    stage.Handler
	Cover       stage.Handler
	Prompter    stage.Handler
	Illustrator stage.Handler
}

// Band is a stage's progress range. Progress reaches Exit only when the
// stage finishes.
type Band struct {
	Entry int
	Exit  int
}

// Bands maps each working stage to its progress band.
var Bands = map[jobs.Stage]Band{
	jobs.StageShredding:         {Entry: 10, Exit: 20},
	jobs.StageAnalyzing:         {Entry: 25, Exit: 45},
	jobs.StageGeneratingCover:   {Entry: 55, Exit: 75},
	jobs.StageGeneratingPrompts: {Entry: 80, Exit: 90},
	jobs.StageGeneratingImages:  {Entry: 92, Exit: 99},
}

// CompletedProgress is recorded when the last stage finishes.
const CompletedProgress = 100

// Interpolate maps done of total units onto the band, staying below Exit.
func (b Band) Interpolate(done, total int) int {
	if total <= 0 || done <= 0 {
		return b.Entry
	}
	if done > total {
		done = total
	}
	value := b.Entry + (b.Exit-b.Entry)*done/total
	if value >= b.Exit {
		value = b.Exit - 1
	}
	if value < b.Entry {
		value = b.Entry
	}
	return value
}

type pipelineStage struct {
	stage    jobs.Stage
	name     string
	handler  stage.Handler
	band     Band
	announce string
	pending  func(ctx context.Context, job *jobs.Job) (bool, error)
}
