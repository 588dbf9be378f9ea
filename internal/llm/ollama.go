package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"docvet/internal/logging"
)

// Ollama talks to a local ollama server over its native HTTP API. A circuit
// breaker sits in front of the mutating endpoints so a dead server fails
// fast instead of eating the full timeout on every call.
type Ollama struct {
	endpoint   string
	model      string
	embedModel string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewOllama creates an ollama client. Empty arguments fall back to the
// stock local install.
func NewOllama(endpoint, model, embedModel string, timeout time.Duration) *Ollama {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ollama",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Fatal errors point at the request, not the server; they must not
		// open the circuit.
		IsSuccessful: func(err error) bool {
			return err == nil || IsFatal(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.LLM("circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &Ollama{
		endpoint:   endpoint,
		model:      model,
		embedModel: embedModel,
		client:     &http.Client{Timeout: timeout},
		breaker:    breaker,
	}
}

// =============================================================================
// OLLAMA API TYPES
// =============================================================================

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// =============================================================================
// CAPABILITY METHODS
// =============================================================================

// Generate produces a completion for a bare prompt via /api/generate.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	timer := logging.StartTimer(logging.CategoryLLM, "generate")
	defer timer.Stop()

	req := ollamaGenerateRequest{Model: o.model, Prompt: prompt}
	var resp ollamaGenerateResponse
	if err := o.call(ctx, http.MethodPost, "/api/generate", req, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// ChatWithSystem produces a completion for a system+user pair via /api/chat.
func (o *Ollama) ChatWithSystem(ctx context.Context, system, user string) (string, error) {
	timer := logging.StartTimer(logging.CategoryLLM, "chat")
	defer timer.Stop()

	req := ollamaChatRequest{
		Model: o.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	var resp ollamaChatResponse
	if err := o.call(ctx, http.MethodPost, "/api/chat", req, &resp); err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// Embed generates embeddings for inputs via /api/embed.
func (o *Ollama) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	req := ollamaEmbedRequest{Model: o.embedModel, Input: inputs}
	var resp ollamaEmbedResponse
	if err := o.call(ctx, http.MethodPost, "/api/embed", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(inputs) {
		return nil, NewFatalError(fmt.Errorf("ollama returned %d embeddings for %d inputs",
			len(resp.Embeddings), len(inputs)))
	}
	return resp.Embeddings, nil
}

// ListModels returns the model names the server has pulled, via /api/tags.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	var resp ollamaTagsResponse
	if err := o.call(ctx, http.MethodGet, "/api/tags", nil, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// IsAvailable probes /api/tags with a short deadline. The probe bypasses
// the breaker so availability checks never trip it.
func (o *Ollama) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var resp ollamaTagsResponse
	return o.roundTrip(ctx, http.MethodGet, "/api/tags", nil, &resp) == nil
}

// ModelName returns the configured completion model.
func (o *Ollama) ModelName() string {
	return o.model
}

// =============================================================================
// TRANSPORT
// =============================================================================

func (o *Ollama) call(ctx context.Context, method, path string, in, out any) error {
	_, err := o.breaker.Execute(func() (interface{}, error) {
		return nil, o.roundTrip(ctx, method, path, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return NewTransientError(fmt.Errorf("ollama unavailable: %w", err))
	}
	return err
}

func (o *Ollama) roundTrip(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return NewFatalError(fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, o.endpoint+path, body)
	if err != nil {
		return NewFatalError(fmt.Errorf("create request: %w", err))
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return NewTransientError(fmt.Errorf("ollama request failed: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return NewTransientError(fmt.Errorf("read response body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return classifyHTTPError(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return NewFatalError(fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

// classifyHTTPError sorts a non-200 status into transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("ollama API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return NewFatalError(err)
	default:
		return NewFatalError(err)
	}
}
