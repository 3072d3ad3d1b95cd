// Package indexer splits page-tagged text into chunks and indexes them into the vector store.
package indexer

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hyperjump/pdfqa/internal/extract"
	"github.com/hyperjump/pdfqa/internal/models"
)

// Splitting strategies.
const (
	StrategyRecursive = "recursive"
	StrategyWindow    = "window"
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunker splits text into overlapping character-based chunks and attributes each to a page.
// Sizes are measured in characters (runes).
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	strategy     string
	separators   []string
}

// NewChunker creates a recursive chunker. chunkOverlap must be smaller than chunkSize;
// an invalid overlap is replaced by a tenth of the size.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 10
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		strategy:     StrategyRecursive,
		separators:   defaultSeparators,
	}
}

// WithStrategy returns c switched to the named strategy. Unknown names keep the recursive splitter.
func (c *Chunker) WithStrategy(strategy string) *Chunker {
	if strategy == StrategyWindow {
		c.strategy = StrategyWindow
	}
	return c
}

// Span is a piece of the source text and its byte offset.
type Span struct {
	Text  string
	Start int
}

// End returns the byte offset just past the span.
func (s Span) End() int {
	return s.Start + len(s.Text)
}

// Chunk splits text and returns chunks for docID, each with a page attributed from the
// page markers in text. Pages outside [1, pageCount] are dropped; pageCount <= 0 disables the check.
func (c *Chunker) Chunk(docID, text string, pageCount int) []*models.Chunk {
	var spans []Span
	if c.strategy == StrategyWindow {
		spans = SplitWindows(text, c.chunkSize, c.chunkOverlap)
	} else {
		spans = c.Split(text)
	}
	if len(spans) == 0 {
		return nil
	}
	markers := extract.FindMarkers(text)
	chunks := make([]*models.Chunk, 0, len(spans))
	for _, sp := range spans {
		chunks = append(chunks, &models.Chunk{
			ID:     uuid.New().String(),
			DocID:  docID,
			Text:   sp.Text,
			Page:   AttributePage(markers, sp, pageCount),
			Offset: sp.Start,
		})
	}
	return chunks
}

// AttributePage returns the page of the last marker that starts before the end of span.
// A marker cut by the span's end still counts, since it begins inside the span.
// It returns nil when no marker qualifies or the page is out of range.
func AttributePage(markers []extract.Marker, span Span, pageCount int) *int {
	end := span.End()
	page := 0
	for _, m := range markers {
		if m.Start >= end {
			break
		}
		page = m.Page
	}
	if page < 1 || (pageCount > 0 && page > pageCount) {
		return nil
	}
	return models.PageNumber(page)
}

// Split runs the recursive splitter: try paragraph breaks, then line breaks, then spaces,
// then single characters, merging pieces back up to the chunk size with overlap.
func (c *Chunker) Split(text string) []Span {
	pieces := c.split(text, c.separators)
	spans := make([]Span, 0, len(pieces))
	from := 0
	for _, p := range pieces {
		start := locate(text, p, from)
		sp := Span{Text: p, Start: start}
		spans = append(spans, sp)
		// the next chunk carries at most chunkOverlap characters of this one
		from = max(start+1, runesBack(text, sp.End(), c.chunkOverlap))
	}
	return spans
}

// runesBack returns the byte offset n runes before offset end.
func runesBack(text string, end, n int) int {
	for i := end; n > 0 && i > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(text[:i])
		i -= size
		end = i
	}
	return end
}

// locate finds piece in text at or after from; pieces are substrings emitted in order.
func locate(text, piece string, from int) int {
	if from > len(text) {
		from = len(text)
	}
	if i := strings.Index(text[from:], piece); i >= 0 {
		return from + i
	}
	if i := strings.Index(text, piece); i >= 0 {
		return i
	}
	return from
}

func (c *Chunker) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			sep = s
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var out, small []string
	for _, piece := range splitKeepSeparator(text, sep) {
		if runeLen(piece) < c.chunkSize {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			out = append(out, c.merge(small)...)
			small = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, c.split(piece, rest)...)
		}
	}
	if len(small) > 0 {
		out = append(out, c.merge(small)...)
	}
	return out
}

// merge joins consecutive pieces into chunks of at most chunkSize, carrying up to
// chunkOverlap characters of trailing pieces into the next chunk.
func (c *Chunker) merge(pieces []string) []string {
	var chunks []string
	var window []string
	total := 0
	emit := func() {
		if s := strings.TrimSpace(strings.Join(window, "")); s != "" {
			chunks = append(chunks, s)
		}
	}
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > c.chunkSize && len(window) > 0 {
			emit()
			for total > c.chunkOverlap || (total+n > c.chunkSize && total > 0) {
				total -= runeLen(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += n
	}
	emit()
	return chunks
}

// splitKeepSeparator splits text on sep, keeping sep at the start of each following piece.
// An empty sep splits into single characters. Empty pieces are dropped.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitWindows cuts text into fixed windows of size characters; window i starts at i*(size-overlap).
// The last window ends at the end of text.
func SplitWindows(text string, size, overlap int) []Span {
	if text == "" || size <= 0 {
		return nil
	}
	step := size - overlap
	if step <= 0 {
		step = 1
	}
	// byte offset of every rune boundary, plus the end
	bounds := make([]int, 0, len(text)+1)
	for i := range text {
		bounds = append(bounds, i)
	}
	n := len(bounds)
	bounds = append(bounds, len(text))

	var spans []Span
	for start := 0; start < n; start += step {
		end := start + size
		if end > n {
			end = n
		}
		spans = append(spans, Span{Text: text[bounds[start]:bounds[end]], Start: bounds[start]})
		if end == n {
			break
		}
	}
	return spans
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
