package generation

import (
	"context"
	"time"
)

// Simulated turns a blocking Generator into a StreamingGenerator by slicing the complete answer
// into fixed-size pieces sent at a fixed interval.
type Simulated struct {
	gen   Generator
	size  int
	delay time.Duration
}

// NewSimulated wraps gen. size is measured in characters.
func NewSimulated(gen Generator, size int, delay time.Duration) *Simulated {
	if size <= 0 {
		size = 20
	}
	if delay < 0 {
		delay = 0
	}
	return &Simulated{gen: gen, size: size, delay: delay}
}

// Complete passes through to the wrapped generator.
func (s *Simulated) Complete(ctx context.Context, prompt string) (string, error) {
	return s.gen.Complete(ctx, prompt)
}

// Stream generates the full answer, then emits it piece by piece. The producer stops as soon
// as ctx is cancelled.
func (s *Simulated) Stream(ctx context.Context, prompt string) (<-chan Fragment, error) {
	answer, err := s.gen.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	pieces := Slice(answer, s.size)
	ch := make(chan Fragment)
	go func() {
		defer close(ch)
		var ticker *time.Ticker
		if s.delay > 0 {
			ticker = time.NewTicker(s.delay)
			defer ticker.Stop()
		}
		for i, p := range pieces {
			if i > 0 && ticker != nil {
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return
				}
			}
			if !send(ctx, ch, Fragment{Text: p}) {
				return
			}
		}
	}()
	return ch, nil
}

// Slice splits s into pieces of at most size runes.
func Slice(s string, size int) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	out := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
