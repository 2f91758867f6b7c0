package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"kbindex/internal/model"
)

var atxHeadingRe = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)

// parseMarkdown streams the file line by line, maintaining a heading stack so
// each emitted section carries its full ancestor breadcrumb. A file without
// headings collapses to a single flat chunk, like plain text.
func parseMarkdown(path string) ([]model.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", model.ErrParseFailure, path, err)
	}
	return markdownSections(path, string(data)), nil
}

func markdownSections(path, text string) []model.Chunk {
	filename := filepath.Base(path)

	var (
		stack    headingStack
		chunks   []model.Chunk
		body     []string
		title    string
		level    int
		secPath  []string
		anyFound bool
	)

	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
		// A titled section is always emitted; an untitled preamble only
		// when it actually holds text.
		if title == "" && content == "" {
			return
		}
		name := title
		if name == "" {
			name = filename
		}
		chunk := newChunk(path, name, content)
		chunk.Element = "md"
		chunk.SectionLevel = level
		chunk.SectionPath = secPath
		chunks = append(chunks, chunk)
	}

	for _, line := range strings.Split(text, "\n") {
		if m := atxHeadingRe.FindStringSubmatch(line); m != nil {
			flush()
			anyFound = true
			level = len(m[1])
			title = strings.TrimSpace(m[2])
			stack.push(level, title)
			secPath = stack.path()
			continue
		}
		body = append(body, line)
	}
	flush()

	if !anyFound {
		// No structure at all: fall back to one whole-file chunk.
		content := strings.TrimSpace(text)
		chunk := newChunk(path, filename, content)
		chunk.Element = "md"
		chunk.SectionPath = []string{filename}
		return []model.Chunk{chunk}
	}
	return chunks
}
