// Package cli provides output helpers and a server client for the pdfqa command line.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/pdfqa/internal/models"
	"github.com/hyperjump/pdfqa/internal/rag"
	"github.com/hyperjump/pdfqa/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes a blocking answer with its sources.
func WriteAnswer(w io.Writer, res *models.AskResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "\n%s\n\n", res.Answer)
	if len(res.Context) > 0 {
		fmt.Fprintln(w, "--- Sources ---")
		for i, hit := range res.Context {
			fmt.Fprintf(w, "[%d] %s %s\n", i+1, pageLabel(hit.Page), utils.TruncateWords(utils.CollapseSpace(hit.Text), 30))
		}
		fmt.Fprintln(w)
	}
	WriteMetadata(w, res.Metadata)
	return nil
}

// WriteMetadata writes the file and pages behind an answer on one line.
func WriteMetadata(w io.Writer, md models.Metadata) {
	fmt.Fprintf(w, "file: %s | pages: %d | used pages: %s\n", md.Filename, len(md.Pages), joinInts(md.UsedPages))
}

// WriteDocuments writes the registered documents.
func WriteDocuments(w io.Writer, docs []*models.Document, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []*models.Document{}
		}
		return writeJSON(w, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents.")
		return nil
	}
	for _, d := range docs {
		fmt.Fprintf(w, "%s  %-40s %4d pages  %s\n", d.ID, utils.Truncate(d.Filename, 37), d.PageCount, d.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// WriteUploadResults writes one line per ingested document.
func WriteUploadResults(w io.Writer, results []*models.UploadResult, format OutputFormat) error {
	if format == OutputJSON {
		if results == nil {
			results = []*models.UploadResult{}
		}
		return writeJSON(w, results)
	}
	for _, r := range results {
		fmt.Fprintf(w, "%s  %s  (%d chunks)\n", r.ID, r.Filename, r.Chunks)
	}
	return nil
}

// StreamAnswer copies answer fragments to w as they arrive and returns the trailing metadata.
// Fragment boundaries do not matter: the metadata marker may be split across fragments.
// A stream that ends with an in-band error, or without metadata, returns an error.
func StreamAnswer(w io.Writer, fragments <-chan string) (*models.Metadata, error) {
	var pending, meta, answer strings.Builder
	inMeta := false
	write := func(s string) {
		if s == "" {
			return
		}
		answer.WriteString(s)
		_, _ = io.WriteString(w, s)
	}
	for f := range fragments {
		if inMeta {
			meta.WriteString(f)
			continue
		}
		pending.WriteString(f)
		buf := pending.String()
		pending.Reset()
		if i := strings.Index(buf, rag.MetaPrefix); i >= 0 {
			write(buf[:i])
			meta.WriteString(buf[i+len(rag.MetaPrefix):])
			inMeta = true
			continue
		}
		keep := partialSuffix(buf, rag.MetaPrefix)
		write(buf[:len(buf)-keep])
		pending.WriteString(buf[len(buf)-keep:])
	}
	if !inMeta {
		write(pending.String())
		text := answer.String()
		if i := strings.Index(text, rag.ErrorPrefix); i >= 0 {
			return nil, errors.New(strings.TrimSpace(text[i+len(rag.ErrorPrefix):]))
		}
		return nil, errors.New("stream ended without metadata")
	}
	var md models.Metadata
	if err := json.Unmarshal([]byte(meta.String()), &md); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &md, nil
}

// partialSuffix returns the length of the longest suffix of s that is a proper prefix of marker.
func partialSuffix(s, marker string) int {
	for n := len(marker) - 1; n > 0; n-- {
		if strings.HasSuffix(s, marker[:n]) {
			return n
		}
	}
	return 0
}

func pageLabel(page *int) string {
	if page == nil {
		return "(page ?)"
	}
	return fmt.Sprintf("(page %d)", *page)
}

func joinInts(ns []int) string {
	if len(ns) == 0 {
		return "none"
	}
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}

// WriteHistory writes the question/answer turns of a document, oldest first.
func WriteHistory(w io.Writer, turns []models.ChatTurn, format OutputFormat) error {
	if format == OutputJSON {
		if turns == nil {
			turns = []models.ChatTurn{}
		}
		return writeJSON(w, turns)
	}
	if len(turns) == 0 {
		fmt.Fprintln(w, "No questions yet.")
		return nil
	}
	for i, t := range turns {
		fmt.Fprintf(w, "Q%d: %s\nA%d: %s\n\n", i+1, t.Question, i+1, t.Answer)
	}
	return nil
}
