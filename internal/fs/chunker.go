package fs

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/log"
)

// segmentSeparator joins consecutive segments before windowing.
const segmentSeparator = "\n\n"

// TextChunker splits text into fixed-size character windows with overlap.
type TextChunker struct {
	opts ChunkOptions
}

// NewTextChunker creates a new text chunker.
func NewTextChunker(opts ChunkOptions) *TextChunker {
	// Apply defaults for zero values
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkOptions().ChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = DefaultChunkOptions().ChunkOverlap
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 5
	}

	return &TextChunker{opts: opts}
}

// Options returns the effective chunk options.
func (c *TextChunker) Options() ChunkOptions {
	return c.opts
}

// span records where a segment starts in the joined text.
type span struct {
	start  int
	source string
	page   int
}

// Chunk joins readable segments and splits them into passages.
// Segments that failed to decode are logged and skipped.
func (c *TextChunker) Chunk(segments []Segment) []Chunk {
	var (
		b      strings.Builder
		spans  []span
		offset int
	)

	for _, seg := range segments {
		if seg.Err != nil {
			log.Warn("Skipping unreadable segment", "source", seg.Source, "page", seg.Page, "row", seg.Row, "error", seg.Err)
			continue
		}
		if !utf8.ValidString(seg.Text) {
			log.Warn("Skipping segment with invalid UTF-8", "source", seg.Source, "page", seg.Page, "row", seg.Row)
			continue
		}
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}

		if len(spans) > 0 {
			b.WriteString(segmentSeparator)
			offset += utf8.RuneCountInString(segmentSeparator)
		}
		spans = append(spans, span{start: offset, source: seg.Source, page: seg.Page})
		b.WriteString(seg.Text)
		offset += utf8.RuneCountInString(seg.Text)
	}

	if len(spans) == 0 {
		return nil
	}

	chunks := c.split([]rune(b.String()))
	for i := range chunks {
		s := spanAt(spans, chunks[i].StartChar)
		chunks[i].Source = s.source
		chunks[i].Page = s.page
	}
	return chunks
}

// ChunkText splits a single piece of text.
func (c *TextChunker) ChunkText(text, source string) []Chunk {
	return c.Chunk([]Segment{{Text: text, Source: source}})
}

// split slides a ChunkSize window over text. Each window after the first
// starts exactly ChunkOverlap runes before the previous cut.
func (c *TextChunker) split(text []rune) []Chunk {
	var chunks []Chunk
	n := len(text)
	start := 0

	for {
		end := start + c.opts.ChunkSize
		if end > n {
			end = n
		}

		cut := end
		if end < n {
			cut = c.findCut(text, start, end)
		}

		content := string(text[start:cut])
		if strings.TrimSpace(content) != "" {
			chunks = append(chunks, Chunk{
				Content:    content,
				ChunkIndex: len(chunks),
				StartChar:  start,
				EndChar:    cut,
			})
		}

		if cut >= n {
			break
		}
		start = cut - c.opts.ChunkOverlap
	}

	return chunks
}

// findCut picks where the window [start, end) should end. It prefers a
// paragraph break, then a sentence end, then whitespace, searching only the
// back half of the window so passages stay close to ChunkSize.
func (c *TextChunker) findCut(text []rune, start, end int) int {
	minCut := start + (end-start)/2
	if floor := start + c.opts.ChunkOverlap + 1; minCut < floor {
		minCut = floor
	}
	if minCut >= end {
		return end
	}

	// Paragraph break
	for i := end - 1; i > minCut; i-- {
		if text[i] == '\n' && text[i-1] == '\n' {
			return i + 1
		}
	}

	// Sentence end or line break
	for i := end - 1; i >= minCut; i-- {
		if text[i] == '\n' {
			return i + 1
		}
		if isSentenceEnd(text[i]) && i+1 < len(text) && unicode.IsSpace(text[i+1]) {
			return i + 1
		}
	}

	// Word boundary
	for i := end - 1; i >= minCut; i-- {
		if unicode.IsSpace(text[i]) {
			return i + 1
		}
	}

	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// spanAt returns the segment containing offset.
func spanAt(spans []span, offset int) span {
	i := sort.Search(len(spans), func(i int) bool { return spans[i].start > offset })
	if i == 0 {
		return spans[0]
	}
	return spans[i-1]
}
