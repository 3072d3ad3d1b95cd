package fileid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestContentID(t *testing.T) {
	id1, err := ContentID(strings.NewReader("%PDF-1.4 hello"))
	if err != nil {
		t.Fatal(err)
	}
	id2, _ := ContentID(strings.NewReader("%PDF-1.4 hello"))
	if id1 != id2 {
		t.Errorf("same content should give same ID: %q vs %q", id1, id2)
	}
	if !strings.HasPrefix(id1, prefix) {
		t.Errorf("ID should have prefix %q: got %q", prefix, id1)
	}
	other, _ := ContentID(strings.NewReader("%PDF-1.4 world"))
	if other == id1 {
		t.Errorf("different content should give different IDs: %q", id1)
	}
}

func TestFileContentID_ignoresName(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	b := filepath.Join(dir, "copy of a.pdf")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("same bytes"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	idA, err := FileContentID(a)
	if err != nil {
		t.Fatal(err)
	}
	idB, err := FileContentID(b)
	if err != nil {
		t.Fatal(err)
	}
	if idA != idB {
		t.Errorf("copies should share an ID: %q vs %q", idA, idB)
	}
}

func TestFileContentID_missingFile(t *testing.T) {
	if _, err := FileContentID(filepath.Join(t.TempDir(), "nope.pdf")); err == nil {
		t.Error("expected error for missing file")
	}
}
