// Package generation talks to answer-generation and vision models.
//
// Providers return plain errors; callers classify them. Streams are channels of Fragment that
// the producer closes when the answer is complete, the provider fails, or ctx is cancelled.
package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Fragment is one piece of a streamed answer. A Fragment with Err set is the last one sent.
type Fragment struct {
	Text string
	Err  error
}

// Generator produces a complete answer in one blocking call.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// StreamingGenerator produces an answer incrementally.
type StreamingGenerator interface {
	Stream(ctx context.Context, prompt string) (<-chan Fragment, error)
}

// VisionModel transcribes or describes an image.
type VisionModel interface {
	Describe(ctx context.Context, image []byte, mimeType, instruction string) (string, error)
}

// Provider is a model backend supporting all three call styles.
type Provider interface {
	Generator
	StreamingGenerator
	VisionModel
}

// Config selects and configures a Provider.
type Config struct {
	Provider    string // openai or ollama
	BaseURL     string
	APIKey      string
	Model       string
	VisionModel string
	// Timeout bounds non-streaming calls at the HTTP client. Streams rely on the caller's context.
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewProvider creates the provider named by cfg.Provider.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "groq", "":
		return NewOpenAI(cfg)
	case "ollama":
		return NewOllama(cfg)
	default:
		return nil, fmt.Errorf("unknown generation provider: %s (supported: openai, ollama)", cfg.Provider)
	}
}

// send delivers f unless ctx is done. It reports whether the consumer is still listening.
func send(ctx context.Context, ch chan<- Fragment, f Fragment) bool {
	select {
	case ch <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
