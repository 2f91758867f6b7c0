package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"

	"kbindex/internal/model"
)

// Below this much total text a multi-page PDF is not worth splitting.
const minPDFSplitChars = 500

// outlineEntry is one flattened table-of-contents row.
type outlineEntry struct {
	title string
	level int
	page  int // 1-based; defaulted to 1 when the destination is unresolvable
}

// parsePDF uses a two-tier strategy: outline-driven section chunks when the
// document has a table of contents, per-page chunks otherwise.
func parsePDF(path string) ([]model.Chunk, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", model.ErrParseFailure, path, err)
	}
	defer f.Close()

	texts := pageTexts(r)

	if entries := loadOutline(path); len(entries) > 0 {
		if chunks := outlineChunks(path, entries, texts); len(chunks) > 0 {
			return chunks, nil
		}
	}
	return pageChunks(path, texts), nil
}

// loadOutline reads the document outline. A missing or unreadable outline is
// not an error, it just selects the page-chunk tier.
func loadOutline(path string) []outlineEntry {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	bms, err := api.Bookmarks(f, nil)
	if err != nil {
		return nil
	}
	var entries []outlineEntry
	flattenBookmarks(bms, 1, &entries)
	return entries
}

// flattenBookmarks walks the bookmark tree in document order. An entry whose
// destination did not resolve keeps page 1 rather than aborting extraction.
func flattenBookmarks(bms []pdfcpu.Bookmark, level int, out *[]outlineEntry) {
	for _, b := range bms {
		page := b.PageFrom
		if page < 1 {
			page = 1
		}
		title := strings.TrimSpace(b.Title)
		if title == "" {
			title = fmt.Sprintf("Page %d", page)
		}
		*out = append(*out, outlineEntry{title: title, level: level, page: page})
		flattenBookmarks(b.Kids, level+1, out)
	}
}

// sectionPathFor rebuilds entry i's breadcrumb by scanning backward for the
// nearest ancestor at each decreasing level. Outlines in the wild are often
// malformed or out of order, so level numbers are the only ancestry trusted.
func sectionPathFor(entries []outlineEntry, i int) []string {
	path := []string{entries[i].title}
	level := entries[i].level
	for j := i - 1; j >= 0 && level > 1; j-- {
		if entries[j].level < level {
			path = append([]string{entries[j].title}, path...)
			level = entries[j].level
		}
	}
	return path
}

// outlineChunks assigns each outline entry the page range up to the next
// entry (the last one extends to end of document) and concatenates that
// range's text into one chunk.
func outlineChunks(path string, entries []outlineEntry, texts []string) []model.Chunk {
	lastPage := len(texts) - 1
	if lastPage < 1 {
		return nil
	}

	var chunks []model.Chunk
	for i, e := range entries {
		start := clampPage(e.page, lastPage)
		end := lastPage
		if i+1 < len(entries) {
			end = clampPage(entries[i+1].page-1, lastPage)
			if end < start {
				end = start
			}
		}

		var parts []string
		for p := start; p <= end; p++ {
			if t := strings.TrimSpace(texts[p]); t != "" {
				parts = append(parts, t)
			}
		}
		content := strings.Join(parts, "\n\n")
		if content == "" {
			continue
		}

		chunk := newChunk(path, e.title, content)
		chunk.Element = "pdf"
		chunk.PageStart = start
		chunk.PageEnd = end
		chunk.SectionLevel = e.level
		chunk.SectionPath = sectionPathFor(entries, i)
		chunks = append(chunks, chunk)
	}
	return chunks
}

// pageChunks is the fallback tier: one chunk per page, or a single
// whole-document chunk when the PDF is one page or nearly empty.
func pageChunks(path string, texts []string) []model.Chunk {
	lastPage := len(texts) - 1
	filename := filepath.Base(path)

	total := 0
	for _, t := range texts {
		total += len(t)
	}

	if lastPage <= 1 || total < minPDFSplitChars {
		var parts []string
		for p := 1; p <= lastPage; p++ {
			if t := strings.TrimSpace(texts[p]); t != "" {
				parts = append(parts, t)
			}
		}
		content := strings.Join(parts, "\n\n")
		if content == "" {
			return nil
		}
		chunk := newChunk(path, filename, content)
		chunk.Element = "pdf"
		chunk.PageStart = 1
		chunk.PageEnd = lastPage
		return []model.Chunk{chunk}
	}

	var chunks []model.Chunk
	for p := 1; p <= lastPage; p++ {
		content := strings.TrimSpace(texts[p])
		if content == "" {
			continue
		}
		name := fmt.Sprintf("Page %d", p)
		chunk := newChunk(path, name, content)
		chunk.Element = "pdf"
		chunk.PageStart = p
		chunk.PageEnd = p
		chunks = append(chunks, chunk)
	}
	return chunks
}

// pageTexts extracts plain text per page, 1-indexed. Pages that fail to
// extract yield empty text rather than failing the document.
func pageTexts(r *pdf.Reader) []string {
	n := r.NumPage()
	texts := make([]string, n+1)
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		t, err := p.GetPlainText(fonts)
		if err != nil {
			continue
		}
		texts[i] = t
	}
	return texts
}

func clampPage(p, last int) int {
	if p < 1 {
		return 1
	}
	if p > last {
		return last
	}
	return p
}
