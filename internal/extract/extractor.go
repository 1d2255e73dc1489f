// Package extract turns document files into plain text for indexing.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupported is returned for file extensions no extractor handles.
var ErrUnsupported = errors.New("unsupported file type")

// Result is the text of one file and the title derived from it.
type Result struct {
	Title string
	Text  string
}

type extractFunc func(content []byte) (string, error)

// Extractor extracts plain text from document files by extension.
type Extractor struct {
	formats map[string]extractFunc
}

// NewExtractor returns an Extractor for plain text, Markdown, reStructuredText, PDF and XLSX.
func NewExtractor() *Extractor {
	return &Extractor{formats: map[string]extractFunc{
		".txt":      extractPlain,
		".text":     extractPlain,
		".md":       extractPlain,
		".markdown": extractPlain,
		".rst":      extractPlain,
		".pdf":      extractPDF,
		".xlsx":     extractExcel,
	}}
}

// Supported reports whether ext (with leading dot, any case) can be extracted.
func (e *Extractor) Supported(ext string) bool {
	_, ok := e.formats[normalizeExt(ext)]
	return ok
}

// Extensions lists the supported extensions in sorted order.
func (e *Extractor) Extensions() []string {
	exts := make([]string, 0, len(e.formats))
	for ext := range e.formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract reads the file at path and returns its text and title.
func (e *Extractor) Extract(path string) (*Result, error) {
	ext := normalizeExt(filepath.Ext(path))
	if !e.Supported(ext) {
		return nil, fmt.Errorf("%s: %w", ext, ErrUnsupported)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	text, err := e.ExtractBytes(content, ext)
	if err != nil {
		return nil, err
	}
	return &Result{Title: Title(path, text), Text: text}, nil
}

// ExtractBytes extracts text from content based on ext, e.g. ".pdf".
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	fn, ok := e.formats[normalizeExt(ext)]
	if !ok {
		return "", fmt.Errorf("%s: %w", ext, ErrUnsupported)
	}
	return fn(content)
}

// Title returns the first Markdown heading for Markdown files, otherwise the file name without
// its extension.
func Title(path, text string) string {
	switch normalizeExt(filepath.Ext(path)) {
	case ".md", ".markdown":
		for _, line := range strings.SplitN(text, "\n", 50) {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "# ") {
				if t := strings.TrimSpace(line[2:]); t != "" {
					return t
				}
			}
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
