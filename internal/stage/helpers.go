package stage

import (
	"strings"

	"bookture/internal/jobs"
)

// LeadingSnippet joins the content of the given units with blank lines, the
// form in which opening pages are handed to the analysis and cover prompts.
func LeadingSnippet(units []jobs.Unit) string {
	parts := make([]string, 0, len(units))
	for _, unit := range units {
		if text := strings.TrimSpace(unit.Content); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}
