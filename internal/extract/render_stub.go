//go:build !cgo

package extract

type unavailableRenderer struct{}

// NewRenderer returns a renderer that always fails; MuPDF needs cgo.
func NewRenderer() Renderer {
	return unavailableRenderer{}
}

func (unavailableRenderer) Open([]byte) (PageRenderer, error) {
	return nil, ErrRenderUnavailable
}
