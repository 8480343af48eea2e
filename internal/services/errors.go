package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternal        = errors.New("external service error")
	ErrValidation      = errors.New("validation error")
	ErrConfiguration   = errors.New("configuration error")
	ErrNotFound        = errors.New("not found")
	ErrTransient       = errors.New("transient failure")
	ErrMalformedOutput = errors.New("malformed model output")
	ErrConsistency     = errors.New("consistency error")
)

// Wrap tags err with marker and prefixes it with "stage: operation: message",
// skipping blank parts. A nil marker counts as ErrTransient.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	detail := buildDetail(stage, operation, message)
	if err == nil {
		return fmt.Errorf("%w: %s", marker, detail)
	}
	return fmt.Errorf("%w: %s: %w", marker, detail, err)
}

// Retryable reports whether a failure may clear up by itself, so a later
// resume is worth attempting.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return false
	default:
		return true
	}
}

// UserMessage produces a short failure description suitable for the job's
// stored error message. Marker prefixes stay so operators can classify it.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "pipeline failed"
	}
	const limit = 500
	if len(msg) > limit {
		msg = msg[:limit] + "..."
	}
	return msg
}

func buildDetail(parts ...string) string {
	kept := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	if len(kept) == 0 {
		return "service failure"
	}
	return strings.Join(kept, ": ")
}
