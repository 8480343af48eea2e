package jobs

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// TitleKey reduces a title to the form used for duplicate detection:
// NFKC-normalized, whitespace-collapsed, and case-folded. Two uploads whose
// titles share a key are treated as the same logical document.
func TitleKey(title string) string {
	normalized := norm.NFKC.String(title)
	collapsed := strings.Join(strings.Fields(normalized), " ")
	return cases.Fold().String(collapsed)
}
