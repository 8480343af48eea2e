package services

import "context"

type contextKey int

const (
	jobIDKey contextKey = iota
	stageKey
	requestIDKey
	callerIDKey
)

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(key).(string)
	return value, ok && value != ""
}

// WithJobID tags ctx with the job being processed.
func WithJobID(ctx context.Context, id string) context.Context {
	return withString(ctx, jobIDKey, id)
}

func JobIDFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, jobIDKey) }

// WithStage tags ctx with the running pipeline stage.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, stageKey) }

// WithRequestID tags ctx with the HTTP request id that triggered the work.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, requestIDKey) }

// WithCallerID tags ctx with the authenticated library owner.
func WithCallerID(ctx context.Context, id string) context.Context {
	return withString(ctx, callerIDKey, id)
}

func CallerIDFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, callerIDKey) }
