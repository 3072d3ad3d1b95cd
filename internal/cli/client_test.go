package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/pdfqa/internal/models"
)

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"No file uploaded"}`)
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		_ = json.NewEncoder(w).Encode(models.UploadResult{ID: "doc-1", Filename: header.Filename, Chunks: len(content)})
	})
	mux.HandleFunc("/ask", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["doc_id"] != "doc-1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"Selected document not found"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(models.AskResult{Query: req["question"], Answer: "42", DocID: "doc-1"})
	})
	mux.HandleFunc("/ask/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range []string{"4", "2", `[META]{"filename":"a.pdf","pages":[1],"used_pages":[1]}`} {
			_, _ = io.WriteString(w, f)
			w.(http.Flusher).Flush()
		}
	})
	mux.HandleFunc("/api/v1/documents", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"documents":[{"id":"doc-1","filename":"a.pdf","page_count":1}]}`)
	})
	mux.HandleFunc("/api/v1/documents/doc-1/history", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"doc_id":"doc-1","history":[{"question":"q","answer":"a"}]}`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_Upload(t *testing.T) {
	ts := fakeServer(t)
	path := filepath.Join(t.TempDir(), "report.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0600); err != nil {
		t.Fatal(err)
	}
	res, err := NewClient(ts.URL+"/", time.Second).Upload(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != "doc-1" || res.Filename != "report.pdf" || res.Chunks != len("%PDF-1.4") {
		t.Errorf("result = %+v", res)
	}
}

func TestClient_Ask(t *testing.T) {
	ts := fakeServer(t)
	c := NewClient(ts.URL, time.Second)
	res, err := c.Ask(context.Background(), "doc-1", "total?")
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != "42" || res.Query != "total?" {
		t.Errorf("result = %+v", res)
	}

	_, err = c.Ask(context.Background(), "missing", "total?")
	if err == nil || !strings.Contains(err.Error(), "404: Selected document not found") {
		t.Errorf("err = %v", err)
	}
}

func TestClient_AskStream(t *testing.T) {
	ts := fakeServer(t)
	ch, err := NewClient(ts.URL, time.Second).AskStream(context.Background(), "doc-1", "total?")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	md, err := StreamAnswer(&buf, ch)
	if err != nil {
		t.Fatal(err)
	}
	if buf.String() != "42" || md.Filename != "a.pdf" {
		t.Errorf("answer %q metadata %+v", buf.String(), md)
	}
}

func TestClient_DocumentsAndHistory(t *testing.T) {
	ts := fakeServer(t)
	c := NewClient(ts.URL, time.Second)
	docs, err := c.Documents(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Filename != "a.pdf" {
		t.Errorf("docs = %+v", docs)
	}
	turns, err := c.History(context.Background(), "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 || turns[0].Answer != "a" {
		t.Errorf("history = %+v", turns)
	}
}
