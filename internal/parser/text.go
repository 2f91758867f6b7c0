package parser

import (
	"fmt"
	"os"
	"path/filepath"

	"kbindex/internal/model"
)

// parseText emits a plain-text file as a single flat chunk.
func parseText(path string) ([]model.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", model.ErrParseFailure, path, err)
	}

	name := filepath.Base(path)
	chunk := newChunk(path, name, string(data))
	chunk.Element = "txt"
	chunk.SectionPath = []string{name}
	return []model.Chunk{chunk}, nil
}
