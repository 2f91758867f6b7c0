// Package parser turns raw document files into ordered chunk sequences.
// Each supported format has its own parser; the format is chosen by file
// extension over a closed set of variants.
package parser

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"kbindex/internal/model"
)

// Format identifies a supported document format.
type Format int

const (
	FormatUnknown Format = iota
	FormatText
	FormatMarkdown
	FormatDocx
	FormatPDF
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "txt"
	case FormatMarkdown:
		return "md"
	case FormatDocx:
		return "docx"
	case FormatPDF:
		return "pdf"
	}
	return "unknown"
}

var formatByExt = map[string]Format{
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".docx":     FormatDocx,
	".pdf":      FormatPDF,
}

// Detect maps a file path's extension to its Format. Unrecognized extensions
// fail with ErrUnsupportedFormat naming the supported set.
func Detect(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := formatByExt[ext]; ok {
		return f, nil
	}
	return FormatUnknown, fmt.Errorf("%w: %q (supported: %s)",
		model.ErrUnsupportedFormat, ext, strings.Join(SupportedExtensions(), ", "))
}

// Supported reports whether the path's extension has a parser.
func Supported(path string) bool {
	_, ok := formatByExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// SupportedExtensions returns the recognized extensions, sorted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(formatByExt))
	for ext := range formatByExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Parse reads the file and returns its chunks in document order. The chunks
// carry provisional structural metadata; splitting of oversized content is
// the chunker's job, not the parser's.
func Parse(path string) ([]model.Chunk, error) {
	format, err := Detect(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatText:
		return parseText(path)
	case FormatMarkdown:
		return parseMarkdown(path)
	case FormatDocx:
		return parseDocx(path)
	case FormatPDF:
		return parsePDF(path)
	}
	return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedFormat, path)
}

// newChunk builds a knowledge-base chunk with its derived id.
func newChunk(filePath, name, content string) model.Chunk {
	return model.Chunk{
		ChunkID:  model.DeriveChunkID(model.TypeKB, filePath, name, content),
		FilePath: filePath,
		Name:     name,
		Content:  content,
		Type:     model.TypeKB,
	}
}
