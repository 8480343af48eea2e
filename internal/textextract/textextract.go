// Package textextract turns an uploaded document into page-sized text units.
//
// Plain text and Markdown are read directly; PDFs go through MuPDF (go-fitz).
// Extracted text is NFC-normalized, newlines are collapsed, and the result is
// regrouped into pages of a fixed word count so every document shreds the
// same way regardless of its original layout.
package textextract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/text/unicode/norm"

	"bookture/internal/services"
)

// DefaultWordsPerPage matches the page size used when no configuration is given.
const DefaultWordsPerPage = 450

// SupportedExtensions lists the document types Extract understands.
var SupportedExtensions = []string{".txt", ".md", ".markdown", ".pdf"}

// Extractor produces ordered page texts from a document on disk.
type Extractor struct {
	WordsPerPage int
}

// New returns an Extractor grouping wordsPerPage words per page.
func New(wordsPerPage int) *Extractor {
	if wordsPerPage <= 0 {
		wordsPerPage = DefaultWordsPerPage
	}
	return &Extractor{WordsPerPage: wordsPerPage}
}

// Supported reports whether path has an extension Extract can read.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range SupportedExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// Pages extracts the document and splits it into pages numbered 1..n by
// position. An empty document is a validation error.
func (e *Extractor) Pages(ctx context.Context, path string) ([]string, error) {
	text, err := Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	words := e.WordsPerPage
	if words <= 0 {
		words = DefaultWordsPerPage
	}
	pages := SplitPages(text, words)
	if len(pages) == 0 {
		return nil, services.Wrap(services.ErrValidation, "shredding", "extract", "document contains no extractable text", nil)
	}
	return pages, nil
}

// Extract returns the full normalized text of the document at path.
func Extract(ctx context.Context, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", services.Wrap(services.ErrValidation, "shredding", "extract", "document path is empty", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrValidation, "shredding", "extract", "document not found at "+path, err)
		}
		return "", fmt.Errorf("stat document: %w", err)
	}
	if info.IsDir() {
		return "", services.Wrap(services.ErrValidation, "shredding", "extract", path+" is a directory", nil)
	}

	var raw string
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt", ".md", ".markdown":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read document: %w", err)
		}
		if !utf8.Valid(data) {
			return "", services.Wrap(services.ErrValidation, "shredding", "extract", "document is not valid UTF-8 text", nil)
		}
		raw = string(data)
	case ".pdf":
		raw, err = extractPDF(ctx, path)
		if err != nil {
			return "", err
		}
	default:
		return "", services.Wrap(services.ErrValidation, "shredding", "extract",
			fmt.Sprintf("unsupported document type %q (supported: %s)", ext, strings.Join(SupportedExtensions, ", ")), nil)
	}
	return norm.NFC.String(raw), nil
}

func extractPDF(ctx context.Context, path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "shredding", "extract", "open pdf", err)
	}
	defer doc.Close()

	var b strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := doc.Text(page)
		if err != nil {
			return "", services.Wrap(services.ErrValidation, "shredding", "extract", fmt.Sprintf("read pdf page %d", page+1), err)
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// SplitPages collapses newlines, splits on whitespace, and groups the words
// into pages of wordsPerPage words. The final page may be shorter.
func SplitPages(text string, wordsPerPage int) []string {
	if wordsPerPage <= 0 {
		wordsPerPage = DefaultWordsPerPage
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	pages := make([]string, 0, len(words)/wordsPerPage+1)
	for start := 0; start < len(words); start += wordsPerPage {
		end := start + wordsPerPage
		if end > len(words) {
			end = len(words)
		}
		pages = append(pages, strings.Join(words[start:end], " "))
	}
	return pages
}
