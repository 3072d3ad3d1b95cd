package rag

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/hyperjump/pdfqa/internal/generation"
	"github.com/hyperjump/pdfqa/internal/models"
	"github.com/hyperjump/pdfqa/internal/storage"
	"go.uber.org/zap"
)

// State is a step in answering one question.
type State int

const (
	StateInit State = iota
	StateRetrieved
	StatePrompted
	StateGenerating
	StateStreaming
	StateMetadataEmitted
	StateHistoryAppended
	StateComplete
	StateError
)

var stateNames = [...]string{
	"INIT", "RETRIEVED", "PROMPTED", "GENERATING", "STREAM_CHUNK",
	"METADATA_EMITTED", "HISTORY_APPENDED", "COMPLETE", "ERROR",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// StateObserver is told about every transition of a turn.
type StateObserver func(docID string, s State)

// AnswerStreamer answers questions about one registered document at a time, either in one
// blocking call or as a stream of fragments closed by a metadata fragment.
type AnswerStreamer struct {
	retriever *Retriever
	generator generation.Generator
	streamer  generation.StreamingGenerator
	store     storage.Store
	timeout   time.Duration
	observer  StateObserver
	logger    *zap.Logger
}

// StreamerOption configures an AnswerStreamer.
type StreamerOption func(*AnswerStreamer)

// WithStateObserver registers fn for state transitions.
func WithStateObserver(fn StateObserver) StreamerOption {
	return func(a *AnswerStreamer) { a.observer = fn }
}

// WithStreamerLogger sets a logger.
func WithStreamerLogger(l *zap.Logger) StreamerOption {
	return func(a *AnswerStreamer) { a.logger = l }
}

// NewAnswerStreamer creates an AnswerStreamer. When streamer is nil, streams are simulated from
// generator. timeout bounds every generation call; zero means no bound.
func NewAnswerStreamer(retriever *Retriever, generator generation.Generator, streamer generation.StreamingGenerator,
	store storage.Store, timeout time.Duration, opts ...StreamerOption) *AnswerStreamer {
	if streamer == nil {
		streamer = generation.NewSimulated(generator, 20, 20*time.Millisecond)
	}
	a := &AnswerStreamer{
		retriever: retriever,
		generator: generator,
		streamer:  streamer,
		store:     store,
		timeout:   timeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// turn tracks the state of one question.
type turn struct {
	a        *AnswerStreamer
	doc      *models.Document
	question string
	state    State
	hits     []models.RetrievalHit
	prompt   string
}

func (a *AnswerStreamer) newTurn(doc *models.Document, question string) *turn {
	t := &turn{a: a, doc: doc, question: question}
	t.advance(StateInit)
	return t
}

func (t *turn) advance(s State) {
	t.state = s
	if t.a.observer != nil {
		t.a.observer(t.doc.ID, s)
	}
	if t.a.logger != nil {
		t.a.logger.Debug("answer state", zap.String("doc_id", t.doc.ID), zap.Stringer("state", s))
	}
}

func (t *turn) fail(err error) error {
	t.advance(StateError)
	if t.a.logger != nil {
		t.a.logger.Warn("answer failed", zap.String("doc_id", t.doc.ID), zap.Error(err))
	}
	return err
}

// retrieve runs retrieval and prompt assembly.
func (t *turn) retrieve(ctx context.Context) error {
	hits, err := t.a.retriever.Retrieve(ctx, t.doc.ID, t.question)
	if err != nil {
		return t.fail(err)
	}
	if hits == nil {
		hits = []models.RetrievalHit{}
	}
	t.hits = hits
	t.advance(StateRetrieved)

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	t.prompt = BuildPrompt(t.question, texts)
	t.advance(StatePrompted)
	return nil
}

func (t *turn) metadata() models.Metadata {
	return models.Metadata{
		Filename:  t.doc.Filename,
		Pages:     t.doc.Pages(),
		UsedPages: models.UsedPages(t.hits),
	}
}

func (t *turn) record(ctx context.Context, answer string) ([]models.ChatTurn, error) {
	history, err := t.a.store.AppendTurn(ctx, t.doc.ID, models.ChatTurn{
		Question:  t.question,
		Answer:    answer,
		Sources:   t.hits,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, t.fail(err)
	}
	t.advance(StateHistoryAppended)
	return history, nil
}

func (a *AnswerStreamer) generationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

// Answer runs the whole turn with one blocking generation call.
func (a *AnswerStreamer) Answer(ctx context.Context, doc *models.Document, question string) (*models.AskResult, error) {
	t := a.newTurn(doc, question)
	if err := t.retrieve(ctx); err != nil {
		return nil, err
	}

	t.advance(StateGenerating)
	gctx, cancel := a.generationContext(ctx)
	answer, err := a.generator.Complete(gctx, t.prompt)
	cancel()
	if err != nil {
		return nil, t.fail(providerError(models.ErrGeneration, "complete", err))
	}
	answer = fallbackAnswer(answer, len(t.hits))
	meta := t.metadata()
	t.advance(StateMetadataEmitted)

	history, err := t.record(ctx, answer)
	if err != nil {
		return nil, err
	}
	t.advance(StateComplete)
	return &models.AskResult{
		Query:    question,
		Answer:   answer,
		DocID:    doc.ID,
		History:  history,
		Context:  t.hits,
		Metadata: meta,
	}, nil
}

// Stream runs the turn in the background and returns its fragments: answer text, then one
// MetaPrefix fragment with the JSON metadata. Failures end the stream with one ErrorPrefix
// fragment and leave the history untouched, as does cancelling ctx. The channel is always closed.
func (a *AnswerStreamer) Stream(ctx context.Context, doc *models.Document, question string) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		emit := func(s string) bool {
			select {
			case out <- s:
				return true
			case <-ctx.Done():
				return false
			}
		}
		t := a.newTurn(doc, question)
		if err := a.stream(ctx, t, emit); err != nil {
			if ctx.Err() == nil || errors.Is(err, models.ErrTimeout) {
				emit(ErrorPrefix + err.Error())
			}
		}
	}()
	return out
}

func (a *AnswerStreamer) stream(ctx context.Context, t *turn, emit func(string) bool) error {
	if err := t.retrieve(ctx); err != nil {
		return err
	}

	t.advance(StateGenerating)
	gctx, cancel := a.generationContext(ctx)
	defer cancel()
	fragments, err := a.streamer.Stream(gctx, t.prompt)
	if err != nil {
		return t.fail(providerError(models.ErrGeneration, "stream", err))
	}

	var answer []byte
	// Leading whitespace is held back until real text arrives, so a blank answer reaches the
	// client as the fallback alone.
	var held string
	sent := false
	for f := range fragments {
		if f.Err != nil {
			return t.fail(providerError(models.ErrGeneration, "stream", f.Err))
		}
		if f.Text == "" {
			continue
		}
		answer = append(answer, f.Text...)
		text := f.Text
		if !sent {
			held += text
			if strings.TrimSpace(held) == "" {
				continue
			}
			text, held, sent = held, "", true
		}
		if t.state != StateStreaming {
			t.advance(StateStreaming)
		}
		if !emit(text) {
			return t.fail(ctx.Err())
		}
	}
	// A producer that stops on cancellation closes its channel without an error fragment.
	if err := gctx.Err(); err != nil {
		return t.fail(providerError(models.ErrGeneration, "stream", err))
	}

	full := fallbackAnswer(string(answer), len(t.hits))
	if !sent && !emit(full) {
		return t.fail(ctx.Err())
	}

	meta, err := json.Marshal(t.metadata())
	if err != nil {
		return t.fail(err)
	}
	if !emit(MetaPrefix + string(meta)) {
		return t.fail(ctx.Err())
	}
	t.advance(StateMetadataEmitted)

	// the client has the whole answer; a disconnect now must not lose the turn
	if _, err := t.record(context.WithoutCancel(ctx), full); err != nil {
		return err
	}
	t.advance(StateComplete)
	return nil
}
