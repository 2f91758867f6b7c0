package parser

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fumiama/go-docx"

	"kbindex/internal/model"
)

var headingStyleRe = regexp.MustCompile(`(?i)^heading\s*([1-6])$`)

// parseDocx segments a Word document by its heading-styled paragraphs using
// the same stack algorithm as Markdown. Heading text is entity-decoded since
// the intermediate markup can carry escaped characters. Documents without
// heading styles fall back to a single chunk.
func parseDocx(path string) ([]model.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", model.ErrParseFailure, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", model.ErrParseFailure, path, err)
	}
	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", model.ErrParseFailure, path, err)
	}

	var paras []docxParagraph
	for _, item := range doc.Document.Body.Items {
		p, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		text := strings.TrimSpace(p.String())
		if text == "" {
			continue
		}
		paras = append(paras, docxParagraph{text: text, headingLevel: paragraphHeadingLevel(p)})
	}

	return docxSections(path, paras), nil
}

type docxParagraph struct {
	text         string
	headingLevel int // 0 = body text
}

func paragraphHeadingLevel(p *docx.Paragraph) int {
	if p.Properties == nil || p.Properties.Style == nil {
		return 0
	}
	m := headingStyleRe.FindStringSubmatch(p.Properties.Style.Val)
	if m == nil {
		return 0
	}
	return int(m[1][0] - '0')
}

// docxSections runs the heading-stack scan over styled paragraphs.
func docxSections(path string, paras []docxParagraph) []model.Chunk {
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
		if title == "" && content == "" {
			return
		}
		name := title
		if name == "" {
			name = filename
		}
		chunk := newChunk(path, name, content)
		chunk.Element = "docx"
		chunk.SectionLevel = level
		chunk.SectionPath = secPath
		chunks = append(chunks, chunk)
	}

	var all []string
	for _, p := range paras {
		all = append(all, p.text)
		if p.headingLevel > 0 {
			flush()
			anyFound = true
			level = p.headingLevel
			title = html.UnescapeString(p.text)
			stack.push(level, title)
			secPath = stack.path()
			continue
		}
		body = append(body, p.text)
	}
	flush()

	if !anyFound {
		content := strings.TrimSpace(strings.Join(all, "\n"))
		if content == "" {
			return nil
		}
		chunk := newChunk(path, filename, content)
		chunk.Element = "docx"
		chunk.SectionPath = []string{filename}
		return []model.Chunk{chunk}
	}
	return chunks
}
