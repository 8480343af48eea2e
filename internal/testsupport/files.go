package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteDocument writes a plain-text document of pages*wordsPerPage words under
// the config's upload directory. Each page's words are tagged with the page
// number so shredded units can be told apart.
func WriteDocument(t testing.TB, dir, name string, pages, wordsPerPage int) string {
	t.Helper()

	var b strings.Builder
	for page := 1; page <= pages; page++ {
		for word := 0; word < wordsPerPage; word++ {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "p%dw%d", page, word)
		}
	}
	return WriteFile(t, filepath.Join(dir, name), b.String())
}
