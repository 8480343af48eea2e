package stage

import (
	"context"

	"bookture/internal/jobs"
)

// Handler describes the contract the workflow manager needs from each stage.
//
// Execute must be idempotent: it is invoked again after a crash or failure
// and should skip whatever durable state shows as already done.
type Handler interface {
	Prepare(context.Context, *jobs.Job) error
	Execute(context.Context, *jobs.Job, Progress) error
	HealthCheck(context.Context) Health
}

// Progress receives per-unit advancement from a running stage. The manager
// maps done/total onto the stage's progress band.
type Progress interface {
	Advance(ctx context.Context, done, total int) error
	Log(ctx context.Context, message string)
}

// NopProgress discards progress reports.
type NopProgress struct{}

func (NopProgress) Advance(context.Context, int, int) error { return nil }

func (NopProgress) Log(context.Context, string) {}
