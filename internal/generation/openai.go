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

const defaultOpenAIBase = "https://api.groq.com/openai/v1"

// OpenAI implements Provider for OpenAI-compatible chat completion APIs (Groq, OpenAI, vLLM).
type OpenAI struct {
	baseURL     string
	apiKey      string
	model       string
	visionModel string
	client      *transport.Client // bounded by Timeout
	stream      *transport.Client // bounded by the caller's context
	logger      *zap.Logger
}

// NewOpenAI returns an OpenAI-compatible provider.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("generation model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBase
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	var opts []transport.Option
	if cfg.Logger != nil {
		opts = append(opts, transport.WithLogger(cfg.Logger))
	}
	return &OpenAI{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		visionModel: cfg.VisionModel,
		client:      transport.New(cfg.Timeout, opts...),
		stream:      transport.New(0, opts...),
		logger:      cfg.Logger,
	}, nil
}

type oaiRequest struct {
	Model    string       `json:"model"`
	Messages []oaiMessage `json:"messages"`
	Stream   bool         `json:"stream"`
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string, or []oaiPart for images
}

type oaiPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *oaiImageURL `json:"image_url,omitempty"`
}

type oaiImageURL struct {
	URL string `json:"url"`
}

type oaiResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type oaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends prompt as a single user message.
func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	return o.chat(ctx, o.model, oaiMessage{Role: "user", Content: prompt})
}

// Describe sends the image as a base64 data URI next to the instruction, using the vision model.
func (o *OpenAI) Describe(ctx context.Context, image []byte, mimeType, instruction string) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURI := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	return o.chat(ctx, o.visionModel, oaiMessage{Role: "user", Content: []oaiPart{
		{Type: "text", Text: instruction},
		{Type: "image_url", ImageURL: &oaiImageURL{URL: dataURI}},
	}})
}

func (o *OpenAI) chat(ctx context.Context, model string, msg oaiMessage) (string, error) {
	var resp oaiResponse
	body := oaiRequest{Model: model, Messages: []oaiMessage{msg}}
	if err := o.client.DoJSON(ctx, http.MethodPost, o.baseURL+"/chat/completions", o.headers(), body, &resp); err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return decodeContent(resp.Choices[0].Message.Content)
}

// decodeContent accepts message content as a string or as a list of text parts.
func decodeContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("decode message content: %w", err)
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		var str string
		if json.Unmarshal(p, &str) == nil {
			texts = append(texts, str)
			continue
		}
		var part oaiPart
		if json.Unmarshal(p, &part) == nil && part.Type == "text" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n"), nil
}

// Stream requests stream=true and forwards each content delta from the SSE response.
func (o *OpenAI) Stream(ctx context.Context, prompt string) (<-chan Fragment, error) {
	payload, err := json.Marshal(oaiRequest{
		Model:    o.model,
		Messages: []oaiMessage{{Role: "user", Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	resp, err := o.stream.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := transport.NewJSONRequest(ctx, http.MethodPost, o.baseURL+"/chat/completions", payload)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/event-stream")
		for k, v := range o.headers() {
			req.Header.Set(k, v)
		}
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}

	ch := make(chan Fragment)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue // blank separators, comments, event names
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			var chunk oaiStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				if o.logger != nil {
					o.logger.Debug("skipping malformed stream event", zap.String("data", data))
				}
				continue
			}
			if chunk.Error != nil {
				send(ctx, ch, Fragment{Err: errors.New(chunk.Error.Message)})
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !send(ctx, ch, Fragment{Text: chunk.Choices[0].Delta.Content}) {
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

func (o *OpenAI) headers() map[string]string {
	if o.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + o.apiKey}
}
