package textextract_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bookture/internal/services"
	"bookture/internal/testsupport"
	"bookture/internal/textextract"
)

func TestSplitPagesGroupsWords(t *testing.T) {
	text := "one two\n\nthree   four\nfive"
	pages := textextract.SplitPages(text, 2)
	want := []string{"one two", "three four", "five"}
	if len(pages) != len(want) {
		t.Fatalf("expected %d pages, got %v", len(want), pages)
	}
	for i := range want {
		if pages[i] != want[i] {
			t.Fatalf("page %d: got %q want %q", i+1, pages[i], want[i])
		}
	}
	if got := textextract.SplitPages("   \n ", 10); got != nil {
		t.Fatalf("expected no pages for blank text, got %v", got)
	}
}

func TestPagesFromTextDocument(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WriteDocument(t, dir, "book.txt", 3, 450)

	pages, err := textextract.New(450).Pages(context.Background(), path)
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	for i, page := range pages {
		if got := len(strings.Fields(page)); got != 450 {
			t.Fatalf("page %d has %d words", i+1, got)
		}
	}
	if !strings.HasPrefix(pages[1], "p2w0 ") {
		t.Fatalf("unexpected second page start: %q", pages[1][:10])
	}
}

func TestPagesNormalizesUnicode(t *testing.T) {
	path := testsupport.WriteFile(t, filepath.Join(t.TempDir(), "accent.md"), "Café au lait")
	pages, err := textextract.New(10).Pages(context.Background(), path)
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if pages[0] != "Café au lait" {
		t.Fatalf("expected NFC text, got %q", pages[0])
	}
}

func TestPagesRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	empty := testsupport.WriteFile(t, filepath.Join(dir, "empty.txt"), "  \n\n ")
	unsupported := testsupport.WriteFile(t, filepath.Join(dir, "book.docx"), "x")
	binary := filepath.Join(dir, "binary.txt")
	if err := os.WriteFile(binary, []byte{0xff, 0xfe, 0xfd}, 0o644); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	extractor := textextract.New(450)
	for _, path := range []string{empty, unsupported, binary, filepath.Join(dir, "missing.txt")} {
		_, err := extractor.Pages(context.Background(), path)
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", filepath.Base(path), err)
		}
	}
}

func TestSupported(t *testing.T) {
	if !textextract.Supported("Book.PDF") || !textextract.Supported("notes.md") {
		t.Fatal("expected pdf and md to be supported")
	}
	if textextract.Supported("book.epub") {
		t.Fatal("epub is not supported")
	}
}
