// Package llm implements the model capability behind enhancement and
// recommendation generation. Two providers are supported, a local ollama
// server spoken to over its native HTTP API and the Gemini API through the
// google genai SDK. Callers hold the capability interface from
// internal/types; which provider backs it is configuration.
package llm

import (
	"context"
	"errors"
	"fmt"

	"docvet/internal/config"
	"docvet/internal/types"
)

// maxResponseSize caps a model response body at 10MB.
const maxResponseSize = 10 * 1024 * 1024

// Embedder is the embedding half of the capability. It stays off the core
// interface because validation and enhancement never embed; callers that
// need vectors assert for it.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// New builds the configured provider client. A disabled configuration
// yields a client whose every call fails with a recoverable error.
func New(ctx context.Context, cfg *config.Config) (types.LLMClient, error) {
	if cfg.LLM.Disabled {
		return NewDisabled(), nil
	}

	switch cfg.LLM.Provider {
	case "ollama":
		return NewOllama(cfg.LLM.Endpoint, cfg.LLM.Model, cfg.LLM.EmbedModel, cfg.GetLLMTimeout()), nil
	case "gemini":
		return NewGemini(ctx, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.EmbedModel)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.LLM.Provider)
	}
}

// Disabled is the no-backend client used when the model capability is
// switched off. Every call fails transient; availability reports false.
type Disabled struct{}

// NewDisabled creates the disabled client.
func NewDisabled() *Disabled {
	return &Disabled{}
}

func errDisabled() error {
	return NewTransientError(errors.New("LLM client is disabled"))
}

func (*Disabled) Generate(context.Context, string) (string, error) {
	return "", errDisabled()
}

func (*Disabled) ChatWithSystem(context.Context, string, string) (string, error) {
	return "", errDisabled()
}

func (*Disabled) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errDisabled()
}

func (*Disabled) ListModels(context.Context) ([]string, error) {
	return nil, errDisabled()
}

func (*Disabled) IsAvailable(context.Context) bool {
	return false
}

func (*Disabled) ModelName() string {
	return "disabled"
}
