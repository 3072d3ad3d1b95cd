// Package extract turns PDF bytes into page-tagged text, transcribing low-yield pages with a vision model.
package extract

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hyperjump/pdfqa/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// VisionInstruction is sent with every rendered page.
const VisionInstruction = "Describe the contents of this page and extract any readable text."

const (
	defaultMinPageChars = 200
	defaultRenderDPI    = 150
	defaultConcurrency  = 4
)

// VisionModel transcribes an image.
type VisionModel interface {
	Describe(ctx context.Context, image []byte, mimeType, instruction string) (string, error)
}

// Origin records where a page's text came from.
type Origin string

const (
	OriginText     Origin = "text"
	OriginVision   Origin = "vision"
	OriginFallback Origin = "fallback"
)

// Page is the chosen text for one page.
type Page struct {
	Number int
	Text   string
	Origin Origin
	// HasText is false when the page produced nothing but an error marker.
	HasText bool
}

// Result holds the pages of an extracted document in page order.
type Result struct {
	Pages []Page
}

// PageCount returns the number of pages.
func (r *Result) PageCount() int {
	return len(r.Pages)
}

// Text returns the marker-tagged document text: each page as "--- Page N ---\n<text>\n".
func (r *Result) Text() string {
	var b strings.Builder
	for _, p := range r.Pages {
		b.WriteString(PageMarker(p.Number))
		b.WriteByte('\n')
		b.WriteString(p.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// Extractor extracts page-tagged text from PDFs.
type Extractor struct {
	vision       VisionModel
	renderer     Renderer
	minPageChars int
	renderDPI    float64
	concurrency  int
	limiter      *rate.Limiter
	logger       *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithVision sets the model used for low-yield pages. Without one, raw page text is kept.
func WithVision(v VisionModel) Option {
	return func(e *Extractor) { e.vision = v }
}

// WithRenderer overrides the page renderer.
func WithRenderer(r Renderer) Option {
	return func(e *Extractor) { e.renderer = r }
}

// WithMinPageChars sets the trimmed character count below which a page goes to the vision model.
func WithMinPageChars(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.minPageChars = n
		}
	}
}

// WithRenderDPI sets the rasterization resolution.
func WithRenderDPI(dpi float64) Option {
	return func(e *Extractor) {
		if dpi > 0 {
			e.renderDPI = dpi
		}
	}
}

// WithConcurrency bounds how many pages are processed at once.
func WithConcurrency(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithVisionRateLimit caps vision calls at rps per second with the given burst.
func WithVisionRateLimit(rps float64, burst int) Option {
	return func(e *Extractor) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithLogger sets a logger for per-page diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// NewExtractor returns an Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		renderer:     NewRenderer(),
		minPageChars: defaultMinPageChars,
		renderDPI:    defaultRenderDPI,
		concurrency:  defaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractFile reads the PDF at path and extracts it.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.Extract(ctx, content)
}

// Extract parses content as a PDF and extracts every page.
func (e *Extractor) Extract(ctx context.Context, content []byte) (*Result, error) {
	doc, err := OpenPDF(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrIngestion, err)
	}
	return e.ExtractPages(ctx, doc, content)
}

// ExtractPages extracts every page of src. content is only used to render pages for the vision model.
// A failing page never fails the document; the document fails when no page yields any text.
func (e *Extractor) ExtractPages(ctx context.Context, src PageSource, content []byte) (*Result, error) {
	n := src.NumPages()
	if n == 0 {
		return nil, fmt.Errorf("%w: document has no pages", models.ErrIngestion)
	}

	pages := make([]Page, n)
	rd := &lazyRenderer{renderer: e.renderer, content: content}
	defer rd.close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := 1; i <= n; i++ {
		num := i
		g.Go(func() error {
			page, err := e.extractPage(gctx, src, rd, num)
			if err != nil {
				return err
			}
			pages[num-1] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Pages: pages}
	for _, p := range pages {
		if p.HasText {
			return res, nil
		}
	}
	return nil, fmt.Errorf("%w: no text could be extracted from any of %d pages", models.ErrIngestion, n)
}

// extractPage only returns an error when ctx is done.
func (e *Extractor) extractPage(ctx context.Context, src PageSource, rd *lazyRenderer, n int) (Page, error) {
	raw, err := src.PageText(n)
	if err != nil {
		e.warn("page text extraction failed", n, err)
		raw = ""
	}
	trimmed := strings.TrimSpace(raw)
	if len([]rune(trimmed)) >= e.minPageChars {
		return Page{Number: n, Text: raw, Origin: OriginText, HasText: true}, nil
	}
	if e.vision == nil {
		return Page{Number: n, Text: raw, Origin: OriginText, HasText: trimmed != ""}, nil
	}

	described, err := e.describePage(ctx, rd, n)
	if err == nil {
		return Page{Number: n, Text: described, Origin: OriginVision, HasText: true}, nil
	}
	if ctx.Err() != nil {
		return Page{}, ctx.Err()
	}
	e.warn("vision fallback failed", n, err)
	marker := fmt.Sprintf("[unreadable page %d: error %v]", n, err)
	text := marker
	if trimmed != "" {
		text = raw + "\n" + marker
	}
	return Page{Number: n, Text: text, Origin: OriginFallback, HasText: trimmed != ""}, nil
}

func (e *Extractor) describePage(ctx context.Context, rd *lazyRenderer, n int) (string, error) {
	pr, err := rd.open()
	if err != nil {
		return "", err
	}
	img, err := pr.RenderJPEG(n, e.renderDPI)
	if err != nil {
		return "", err
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	text, err := e.vision.Describe(ctx, img, "image/jpeg", VisionInstruction)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty transcription", models.ErrExtraction)
	}
	if e.logger != nil {
		e.logger.Debug("page transcribed by vision model", zap.Int("page", n), zap.Int("chars", len(text)))
	}
	return text, nil
}

func (e *Extractor) warn(msg string, page int, err error) {
	if e.logger != nil {
		e.logger.Warn(msg, zap.Int("page", page), zap.Error(err))
	}
}

// lazyRenderer opens the document for rendering on first use and shares it between pages.
type lazyRenderer struct {
	renderer Renderer
	content  []byte

	once sync.Once
	mu   sync.Mutex
	pr   PageRenderer
	err  error
}

func (l *lazyRenderer) open() (pageRendererLocked, error) {
	l.once.Do(func() {
		if l.renderer == nil {
			l.err = ErrRenderUnavailable
			return
		}
		l.pr, l.err = l.renderer.Open(l.content)
	})
	if l.err != nil {
		return pageRendererLocked{}, l.err
	}
	return pageRendererLocked{l}, nil
}

func (l *lazyRenderer) close() {
	if l.pr != nil {
		_ = l.pr.Close()
	}
}

// pageRendererLocked serializes rendering on the shared document.
type pageRendererLocked struct {
	l *lazyRenderer
}

func (p pageRendererLocked) RenderJPEG(n int, dpi float64) ([]byte, error) {
	p.l.mu.Lock()
	defer p.l.mu.Unlock()
	return p.l.pr.RenderJPEG(n, dpi)
}
