package textutil

import (
	"strings"
	"unicode"
)

// Slug lowercases value and collapses every run of characters outside ASCII
// letters and digits into a single dash. Leading and trailing dashes are
// dropped, so a title with no usable characters yields "".
func Slug(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(value))
	lastDash := false
	for _, r := range value {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToLower(r))
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// SlugOr returns Slug(value), or fallback when the slug is empty.
func SlugOr(value, fallback string) string {
	if slug := Slug(value); slug != "" {
		return slug
	}
	return fallback
}
