//go:build cgo

package extract

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
)

const jpegQuality = 85

// FitzRenderer renders pages with MuPDF through go-fitz.
type FitzRenderer struct{}

// NewRenderer returns the MuPDF-backed renderer.
func NewRenderer() Renderer {
	return FitzRenderer{}
}

// Open loads content into MuPDF.
func (FitzRenderer) Open(content []byte) (PageRenderer, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, fmt.Errorf("open for rendering: %w", err)
	}
	return &fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (f *fitzDocument) RenderJPEG(n int, dpi float64) ([]byte, error) {
	img, err := f.doc.ImageDPI(n-1, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", n, err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode page %d: %w", n, err)
	}
	return buf.Bytes(), nil
}

func (f *fitzDocument) Close() error {
	return f.doc.Close()
}
