// Package pdf extracts text from PDF documents.
package pdf

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// ErrUnreadable is returned for corrupt, encrypted or non-PDF input.
var ErrUnreadable = errors.New("pdf could not be read")

// Document is the extracted content of a PDF.
type Document struct {
	Text  string // whitespace-normalized text of all pages
	Title string // from document metadata, may be empty
	Pages int
}

// Extract reads a PDF held in memory. Pages whose text cannot be extracted
// are skipped; a scanned PDF therefore yields a document with empty Text.
func Extract(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnreadable)
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer doc.Close()

	var parts []string
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err == nil && strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}

	return &Document{
		Text:  Normalize(strings.Join(parts, "\n")),
		Title: cleanTitle(doc.Metadata()["title"]),
		Pages: doc.NumPage(),
	}, nil
}

// ExtractFile reads a PDF from disk.
func ExtractFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Extract(data)
}

// Normalize collapses every run of whitespace into a single space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanTitle drops metadata titles that are really file names or
// placeholders left by authoring tools.
func cleanTitle(t string) string {
	t = Normalize(t)
	lower := strings.ToLower(t)
	switch {
	case t == "":
		return ""
	case lower == "untitled", strings.HasPrefix(lower, "microsoft word"):
		return ""
	case strings.HasSuffix(lower, ".pdf"), strings.HasSuffix(lower, ".doc"), strings.HasSuffix(lower, ".docx"):
		return ""
	}
	return t
}
