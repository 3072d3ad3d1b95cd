package generation

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hyperjump/pdfqa/internal/transport"
	"go.uber.org/zap"
)

const defaultOllamaBase = "http://localhost:11434"

// Ollama implements Provider using the Ollama /api/chat endpoint.
type Ollama struct {
	baseURL     string
	model       string
	visionModel string
	client      *transport.Client
	stream      *transport.Client
	logger      *zap.Logger
}

// NewOllama returns an Ollama provider.
func NewOllama(cfg Config) (*Ollama, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("generation model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaBase
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	var opts []transport.Option
	if cfg.Logger != nil {
		opts = append(opts, transport.WithLogger(cfg.Logger))
	}
	return &Ollama{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		visionModel: cfg.VisionModel,
		client:      transport.New(cfg.Timeout, opts...),
		stream:      transport.New(0, opts...),
		logger:      cfg.Logger,
	}, nil
}

type ollamaRequest struct {
	Model    string      `json:"model"`
	Messages []ollamaMsg `json:"messages"`
	Stream   bool        `json:"stream"`
}

type ollamaMsg struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaResponse struct {
	Message ollamaMsg `json:"message"`
	Done    bool      `json:"done"`
	Error   string    `json:"error"`
}

// Complete sends prompt as a single user message.
func (o *Ollama) Complete(ctx context.Context, prompt string) (string, error) {
	return o.chat(ctx, o.model, ollamaMsg{Role: "user", Content: prompt})
}

// Describe attaches the base64 image to the instruction, using the vision model.
func (o *Ollama) Describe(ctx context.Context, image []byte, mimeType, instruction string) (string, error) {
	return o.chat(ctx, o.visionModel, ollamaMsg{
		Role:    "user",
		Content: instruction,
		Images:  []string{base64.StdEncoding.EncodeToString(image)},
	})
}

func (o *Ollama) chat(ctx context.Context, model string, msg ollamaMsg) (string, error) {
	var resp ollamaResponse
	body := ollamaRequest{Model: model, Messages: []ollamaMsg{msg}}
	if err := o.client.DoJSON(ctx, http.MethodPost, o.baseURL+"/api/chat", nil, body, &resp); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama chat: %s", resp.Error)
	}
	return resp.Message.Content, nil
}

// Stream reads the newline-delimited JSON response and forwards each message delta.
func (o *Ollama) Stream(ctx context.Context, prompt string) (<-chan Fragment, error) {
	payload, err := json.Marshal(ollamaRequest{
		Model:    o.model,
		Messages: []ollamaMsg{{Role: "user", Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	resp, err := o.stream.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return transport.NewJSONRequest(ctx, http.MethodPost, o.baseURL+"/api/chat", payload)
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat stream: %w", err)
	}

	ch := make(chan Fragment)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var chunk ollamaResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				if o.logger != nil {
					o.logger.Debug("skipping malformed stream line", zap.ByteString("line", line))
				}
				continue
			}
			if chunk.Error != "" {
				send(ctx, ch, Fragment{Err: errors.New(chunk.Error)})
				return
			}
			if chunk.Message.Content != "" && !send(ctx, ch, Fragment{Text: chunk.Message.Content}) {
				return
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			send(ctx, ch, Fragment{Err: fmt.Errorf("read stream: %w", err)})
		}
	}()
	return ch, nil
}
