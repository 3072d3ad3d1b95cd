package extract

import "errors"

// ErrRenderUnavailable is returned when the binary was built without a page renderer.
var ErrRenderUnavailable = errors.New("page rendering not available (built without cgo)")

// Renderer opens a document for rasterizing pages.
type Renderer interface {
	Open(content []byte) (PageRenderer, error)
}

// PageRenderer rasterizes pages of one opened document.
type PageRenderer interface {
	// RenderJPEG renders 1-based page n at dpi and returns JPEG bytes.
	RenderJPEG(n int, dpi float64) ([]byte, error)
	Close() error
}
