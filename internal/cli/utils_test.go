package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/pdfqa/internal/models"
)

func sampleAnswer() *models.AskResult {
	return &models.AskResult{
		Query:  "total?",
		Answer: "The total is 42.",
		DocID:  "doc-1",
		Context: []models.RetrievalHit{
			{Text: "Invoice\ntotal 42", Page: models.PageNumber(2)},
			{Text: "no page here"},
		},
		Metadata: models.Metadata{Filename: "a.pdf", Pages: []int{1, 2, 3}, UsedPages: []int{2}},
	}
}

func TestWriteAnswer_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, sampleAnswer(), OutputJSON); err != nil {
		t.Fatalf("WriteAnswer(json): %v", err)
	}
	var decoded models.AskResult
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Answer != "The total is 42." || decoded.Metadata.Filename != "a.pdf" || len(decoded.Context) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteAnswer_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, sampleAnswer(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"The total is 42.", "[1] (page 2) Invoice total 42", "[2] (page ?) no page here", "file: a.pdf | pages: 3 | used pages: 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteDocuments(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDocuments(&buf, nil, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No documents.") {
		t.Errorf("empty list: %q", buf.String())
	}

	buf.Reset()
	if err := WriteDocuments(&buf, nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty JSON list: %q", buf.String())
	}

	buf.Reset()
	docs := []*models.Document{{ID: "doc-1", Filename: "report.pdf", PageCount: 3, CreatedAt: time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)}}
	if err := WriteDocuments(&buf, docs, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "doc-1") || !strings.Contains(out, "report.pdf") || !strings.Contains(out, "2024-05-01 10:30") {
		t.Errorf("output = %q", out)
	}
}

func TestWriteUploadResults(t *testing.T) {
	var buf bytes.Buffer
	results := []*models.UploadResult{{ID: "doc-1", Filename: "a.pdf", Chunks: 4}}
	if err := WriteUploadResults(&buf, results, OutputText); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "doc-1  a.pdf  (4 chunks)\n" {
		t.Errorf("output = %q", got)
	}
}

func feed(fragments ...string) <-chan string {
	ch := make(chan string, len(fragments))
	for _, f := range fragments {
		ch <- f
	}
	close(ch)
	return ch
}

func TestStreamAnswer(t *testing.T) {
	tests := []struct {
		name      string
		fragments []string
	}{
		{"whole fragments", []string{"The total ", "is 42.", `[META]{"filename":"a.pdf","pages":[1,2],"used_pages":[2]}`}},
		{"marker split across reads", []string{"The total is 42.[ME", `TA]{"filename":"a.pdf",`, `"pages":[1,2],"used_pages":[2]}`}},
		{"answer ending in a bracket", []string{"The total is 42.", `[`, `META]{"filename":"a.pdf","pages":[1,2],"used_pages":[2]}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			md, err := StreamAnswer(&buf, feed(tt.fragments...))
			if err != nil {
				t.Fatal(err)
			}
			if buf.String() != "The total is 42." {
				t.Errorf("answer = %q", buf.String())
			}
			if md.Filename != "a.pdf" || len(md.Pages) != 2 || len(md.UsedPages) != 1 || md.UsedPages[0] != 2 {
				t.Errorf("metadata = %+v", md)
			}
		})
	}
}

func TestStreamAnswer_errors(t *testing.T) {
	var buf bytes.Buffer
	_, err := StreamAnswer(&buf, feed("partial ", "⚠️ Error: generation provider error: boom"))
	if err == nil || err.Error() != "generation provider error: boom" {
		t.Errorf("err = %v", err)
	}

	buf.Reset()
	_, err = StreamAnswer(&buf, feed("cut off [ME"))
	if err == nil {
		t.Error("expected error for stream without metadata")
	}
	if buf.String() != "cut off [ME" {
		t.Errorf("held-back text should be flushed at end: %q", buf.String())
	}
}

func TestPartialSuffix(t *testing.T) {
	tests := []struct {
		s    string
		want int
	}{
		{"abc", 0},
		{"abc[", 1},
		{"abc[MET", 4},
		{"[META", 5},
		{"", 0},
	}
	for _, tt := range tests {
		if got := partialSuffix(tt.s, "[META]"); got != tt.want {
			t.Errorf("partialSuffix(%q) = %d, want %d", tt.s, got, tt.want)
		}
	}
}

func TestWriteHistory(t *testing.T) {
	var buf bytes.Buffer
	turns := []models.ChatTurn{{Question: "q1", Answer: "a1"}, {Question: "q2", Answer: "a2"}}
	if err := WriteHistory(&buf, turns, OutputText); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "Q1: q1\nA1: a1\n\nQ2: q2\nA2: a2\n\n" {
		t.Errorf("output = %q", got)
	}
	buf.Reset()
	if err := WriteHistory(&buf, nil, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No questions yet.") {
		t.Errorf("empty: %q", buf.String())
	}
}
