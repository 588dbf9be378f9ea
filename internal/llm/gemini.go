package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"docvet/internal/logging"
)

// Gemini serves the capability through the Gemini API.
type Gemini struct {
	client     *genai.Client
	model      string
	embedModel string
}

// NewGemini creates a Gemini client. The API key is required; models fall
// back to current defaults when unset.
func NewGemini(ctx context.Context, apiKey, model, embedModel string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if embedModel == "" {
		embedModel = "gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	logging.LLM("gemini client ready: model=%s embed=%s", model, embedModel)
	return &Gemini{
		client:     client,
		model:      model,
		embedModel: embedModel,
	}, nil
}

// Generate produces a completion for a bare prompt.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	timer := logging.StartTimer(logging.CategoryLLM, "generate")
	defer timer.Stop()

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", NewTransientError(fmt.Errorf("gemini generate failed: %w", err))
	}
	text := result.Text()
	if text == "" {
		return "", NewFatalError(fmt.Errorf("gemini returned empty response"))
	}
	return text, nil
}

// ChatWithSystem produces a completion for a system+user pair. Gemini takes
// the system text as a leading user-role content.
func (g *Gemini) ChatWithSystem(ctx context.Context, system, user string) (string, error) {
	timer := logging.StartTimer(logging.CategoryLLM, "chat")
	defer timer.Stop()

	contents := []*genai.Content{
		genai.NewContentFromText(system, genai.RoleUser),
		genai.NewContentFromText(user, genai.RoleUser),
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", NewTransientError(fmt.Errorf("gemini chat failed: %w", err))
	}
	text := result.Text()
	if text == "" {
		return "", NewFatalError(fmt.Errorf("gemini returned empty response"))
	}
	return text, nil
}

// Embed generates embeddings for inputs.
func (g *Gemini) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(inputs))
	for i, text := range inputs {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := g.client.Models.EmbedContent(ctx, g.embedModel, contents,
		&genai.EmbedContentConfig{
			TaskType: "SEMANTIC_SIMILARITY",
		},
	)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("gemini embed failed: %w", err))
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

// ListModels returns the configured models. The Gemini API serves a fixed
// hosted catalog, so listing reduces to what this process is set to use.
func (g *Gemini) ListModels(ctx context.Context) ([]string, error) {
	return []string{g.model, g.embedModel}, nil
}

// IsAvailable reports whether the client was constructed. The hosted API
// has no cheap liveness probe; call failures surface at call time.
func (g *Gemini) IsAvailable(ctx context.Context) bool {
	return g.client != nil
}

// ModelName returns the configured completion model.
func (g *Gemini) ModelName() string {
	return g.model
}
