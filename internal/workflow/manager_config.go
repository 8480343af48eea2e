package workflow

import (
	"context"

	"bookture/internal/jobs"
	"bookture/internal/stage"
)

// ConfigureStages registers the concrete stage handlers the workflow will run.
// Missing handlers are left out of the pipeline.
func (m *Manager) ConfigureStages(set StageSet) {
	var stages []pipelineStage
	add := func(s jobs.Stage, name string, handler stage.Handler, announce string, pending func(context.Context, *jobs.Job) (bool, error)) {
		if handler == nil {
			return
		}
		if pending == nil {
			band := Bands[s]
			pending = func(_ context.Context, job *jobs.Job) (bool, error) {
				return job.Progress < band.Exit, nil
			}
		}
		stages = append(stages, pipelineStage{
			stage:    s,
			name:     name,
			handler:  handler,
			band:     Bands[s],
			announce: announce,
			pending:  pending,
		})
	}

	add(jobs.StageShredding, "shredding", set.Shredder, "Shredding document into pages.", m.needsShredding)
	add(jobs.StageAnalyzing, "analysis", set.Analyzer, "Analyzing style and characters.", nil)
	add(jobs.StageGeneratingCover, "cover", set.Cover, "Designing the cover.", nil)
	add(jobs.StageGeneratingPrompts, "prompting", set.Prompter, "Writing page prompts.", nil)
	add(jobs.StageGeneratingImages, "illustration", set.Illustrator, "Illustrating pages.", nil)

	m.mu.Lock()
	m.stages = stages
	m.mu.Unlock()
}

func (m *Manager) needsShredding(ctx context.Context, job *jobs.Job) (bool, error) {
	count, err := m.store.CountUnits(ctx, job.ID)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}
