package extract

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/ledongthuc/pdf"
)

// PageSource exposes the ordered pages of an opened document. Page numbers are 1-based.
type PageSource interface {
	NumPages() int
	PageText(n int) (string, error)
}

// PDFDocument reads page text with ledongthuc/pdf.
type PDFDocument struct {
	mu sync.Mutex
	r  *pdf.Reader
}

// OpenPDF parses content as a PDF.
func OpenPDF(content []byte) (*PDFDocument, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	return &PDFDocument{r: r}, nil
}

// NumPages returns the page count.
func (d *PDFDocument) NumPages() int {
	return d.r.NumPage()
}

// PageText returns the plain text of page n. A page without content yields "".
func (d *PDFDocument) PageText(n int) (text string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// the reader panics on some malformed content streams
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract page %d: %v", n, r)
		}
	}()
	if n < 1 || n > d.r.NumPage() {
		return "", fmt.Errorf("page %d out of range", n)
	}
	page := d.r.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extract page %d: %w", n, err)
	}
	return text, nil
}
