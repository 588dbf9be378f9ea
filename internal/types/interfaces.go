package types

import "context"

// LLMClient is the model capability the server consumes. Implementations
// live in internal/llm; any conforming client may be substituted, which is
// what tests do.
type LLMClient interface {
	// Generate produces a completion for a bare prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// ChatWithSystem produces a completion for a system+user message pair.
	ChatWithSystem(ctx context.Context, system, user string) (string, error)

	// ListModels returns the model names the backend serves.
	ListModels(ctx context.Context) ([]string, error)

	// IsAvailable reports backend reachability. It never returns an error;
	// unreachable backends report false.
	IsAvailable(ctx context.Context) bool

	// ModelName returns the configured default model.
	ModelName() string
}

// RecommendationGenerator turns a validation snapshot into edit proposals.
// The default implementation is LLM-backed with a findings-driven fallback;
// tests substitute their own.
type RecommendationGenerator interface {
	Generate(ctx context.Context, snapshot RecommendationSnapshot) ([]RecommendationDraft, error)
}
