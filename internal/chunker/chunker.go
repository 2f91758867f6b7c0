// Package chunker splits oversized chunks into overlapping sub-chunks at
// natural text boundaries, preserving each parent's structural lineage.
package chunker

import (
	"fmt"
	"strings"

	"kbindex/internal/model"
)

const (
	DefaultMaxChunkSize = 2000
	DefaultOverlap      = 200
)

// Options configures splitting behavior.
type Options struct {
	MaxChunkSize int
	Overlap      int
}

// DefaultOptions returns default splitting options.
func DefaultOptions() Options {
	return Options{
		MaxChunkSize: DefaultMaxChunkSize,
		Overlap:      DefaultOverlap,
	}
}

// Chunker post-processes parser output.
type Chunker struct {
	opts Options
}

// New creates a Chunker. Zero options fall back to defaults.
func New(opts Options) *Chunker {
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = DefaultMaxChunkSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = DefaultOverlap
	}
	return &Chunker{opts: opts}
}

// Process applies SplitLarge to each chunk, preserving order.
func (c *Chunker) Process(chunks []model.Chunk) []model.Chunk {
	var out []model.Chunk
	for _, ch := range chunks {
		out = append(out, c.SplitLarge(ch)...)
	}
	return out
}

// SplitLarge returns the chunk unchanged when it fits, otherwise walks the
// content in windows of MaxChunkSize, breaking at the best boundary inside
// each window. Consecutive windows share an Overlap-sized region; the start
// always advances by at least one unit so splitting terminates for any
// configuration.
func (c *Chunker) SplitLarge(ch model.Chunk) []model.Chunk {
	content := ch.Content
	if len(content) <= c.opts.MaxChunkSize {
		return []model.Chunk{ch}
	}

	var out []model.Chunk
	part := 0
	start := 0
	for start < len(content) {
		end := start + c.opts.MaxChunkSize
		if end >= len(content) {
			end = len(content)
		} else {
			end = boundary(content, start, end)
		}

		if slice := strings.TrimSpace(content[start:end]); slice != "" {
			part++
			sub := ch
			sub.ChunkID = model.SubChunkID(ch.ChunkID, part)
			sub.ParentChunkID = ch.ChunkID
			sub.Name = fmt.Sprintf("%s (part %d)", ch.Name, part)
			sub.Content = slice
			out = append(out, sub)
		}

		if end >= len(content) {
			break
		}
		next := end - c.opts.Overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}

// boundary searches backward from the window limit for the best break point:
// sentence-ending punctuation followed by a space, then a blank line, then a
// single newline, else the limit itself.
func boundary(s string, start, limit int) int {
	window := s[start:limit]

	for i := len(window) - 2; i > 0; i-- {
		switch window[i] {
		case '.', '!', '?':
			if window[i+1] == ' ' || window[i+1] == '\n' {
				return start + i + 1
			}
		}
	}
	if i := strings.LastIndex(window, "\n\n"); i > 0 {
		return start + i + 1
	}
	if i := strings.LastIndexByte(window, '\n'); i > 0 {
		return start + i + 1
	}
	return limit
}
