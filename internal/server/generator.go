package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"docvet/internal/config"
	"docvet/internal/logging"
	"docvet/internal/prompts"
	"docvet/internal/types"
)

// recommendSystemMessage fixes the model's role for recommendation calls.
const recommendSystemMessage = "You are a documentation reviewer. " +
	"Propose concrete, minimal edits. Respond with JSON only."

// defaultRecommendTemplate is used when no recommend prompt document ships
// with the deployment. The prompts directory overrides it via
// recommend.yaml.
const defaultRecommendTemplate = "Review this Markdown document and its validator findings, " +
	"then propose edits.\nRespond with a JSON array; each element has the fields " +
	"type, title, description, scope, instruction, rationale, severity, " +
	"original_content, proposed_content, confidence (0 to 1), priority.\n\n" +
	"Document:\n{content}\n\nFindings:\n{findings}"

// Generator is the default recommendation generator: LLM-backed when the
// model is reachable, falling back to findings-driven heuristics so
// recommendation flows keep working offline.
type Generator struct {
	llm     types.LLMClient
	prompts *prompts.Loader
	cfg     *config.Config
}

// NewGenerator creates the default generator.
func NewGenerator(llm types.LLMClient, loader *prompts.Loader, cfg *config.Config) *Generator {
	return &Generator{llm: llm, prompts: loader, cfg: cfg}
}

// Generate proposes edits for one validation snapshot. LLM failures are
// absorbed by the heuristic path; the error return is reserved for context
// cancellation.
func (g *Generator) Generate(ctx context.Context, snapshot types.RecommendationSnapshot) ([]types.RecommendationDraft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if g.llm.IsAvailable(ctx) {
		drafts, err := g.generateLLM(ctx, snapshot)
		if err == nil {
			return drafts, nil
		}
		logging.LLM("recommendation generation fell back to heuristics for %s: %v",
			snapshot.ValidationID, err)
	}
	return g.generateHeuristic(snapshot), nil
}

func (g *Generator) generateLLM(ctx context.Context, snapshot types.RecommendationSnapshot) ([]types.RecommendationDraft, error) {
	findingsJSON, err := json.Marshal(snapshot.Findings)
	if err != nil {
		return nil, err
	}

	prompt, err := g.prompts.Format("recommend", "findings", map[string]string{
		"content":   snapshot.Content,
		"findings":  string(findingsJSON),
		"file_path": snapshot.FilePath,
	})
	if err != nil {
		prompt = strings.NewReplacer(
			"{content}", snapshot.Content,
			"{findings}", string(findingsJSON),
		).Replace(defaultRecommendTemplate)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.GetLLMTimeout())
	defer cancel()
	raw, err := g.llm.ChatWithSystem(callCtx, recommendSystemMessage, prompt)
	if err != nil {
		return nil, err
	}

	drafts, err := parseDrafts(raw)
	if err != nil {
		return nil, err
	}
	for i := range drafts {
		sanitizeDraft(&drafts[i])
	}
	return drafts, nil
}

// parseDrafts extracts the first JSON array from a model response, which
// may be wrapped in code fences or prose.
func parseDrafts(raw string) ([]types.RecommendationDraft, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in model response")
	}
	var drafts []types.RecommendationDraft
	if err := json.Unmarshal([]byte(raw[start:end+1]), &drafts); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}
	return drafts, nil
}

func sanitizeDraft(d *types.RecommendationDraft) {
	if d.Type == "" {
		d.Type = "content_improvement"
	}
	if d.Scope == "" {
		d.Scope = "content"
	}
	switch d.Severity {
	case types.SeverityInfo, types.SeverityWarning, types.SeverityError:
	default:
		d.Severity = types.SeverityInfo
	}
	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}
	if d.Priority <= 0 {
		d.Priority = priorityFor(d.Severity)
	}
}

func priorityFor(sev types.Severity) int {
	switch sev {
	case types.SeverityError:
		return 1
	case types.SeverityWarning:
		return 2
	default:
		return 3
	}
}

// generateHeuristic turns validator findings directly into drafts. The
// proposals are deliberately conservative: only untagged code fences get a
// textual replacement; everything else is an instruction for a reviewer.
func (g *Generator) generateHeuristic(snapshot types.RecommendationSnapshot) []types.RecommendationDraft {
	drafts := []types.RecommendationDraft{}
	for _, f := range snapshot.Findings {
		switch f.Type {
		case types.FindingMissingCodeLanguage:
			drafts = append(drafts, types.RecommendationDraft{
				Type:            "code_language",
				Title:           "Tag untagged code block",
				Description:     fmt.Sprintf("The code block at line %d has no language tag.", f.Line),
				Scope:           "content",
				Instruction:     "Add a language tag after the opening fence, or use text for plain output.",
				Rationale:       "Untagged code blocks disable syntax highlighting.",
				Severity:        f.Severity,
				OriginalContent: "```\n",
				ProposedContent: "```text\n",
				Confidence:      0.9,
				Priority:        priorityFor(f.Severity),
			})
		case types.FindingMissingRequiredField:
			drafts = append(drafts, types.RecommendationDraft{
				Type:        "header_fix",
				Title:       fmt.Sprintf("Add required field %q", f.Field),
				Description: fmt.Sprintf("The front matter is missing the required field %q.", f.Field),
				Scope:       "header",
				Instruction: fmt.Sprintf("Add %s to the front matter.", f.Field),
				Rationale:   "Required fields must be present for the document family.",
				Severity:    f.Severity,
				Confidence:  0.8,
				Priority:    priorityFor(f.Severity),
			})
		case types.FindingInvalidFieldType, types.FindingInvalidEnumValue, types.FindingForbiddenField:
			drafts = append(drafts, types.RecommendationDraft{
				Type:        "header_fix",
				Title:       fmt.Sprintf("Fix front matter field %q", f.Field),
				Description: findingSummary(f),
				Scope:       "header",
				Instruction: fmt.Sprintf("Correct the %s field in the front matter.", f.Field),
				Rationale:   findingSummary(f),
				Severity:    f.Severity,
				Confidence:  0.8,
				Priority:    priorityFor(f.Severity),
			})
		case types.FindingExternalLinks:
			drafts = append(drafts, types.RecommendationDraft{
				Type:        "link_review",
				Title:       "Review external links",
				Description: fmt.Sprintf("The document references %d external links.", f.Count),
				Scope:       "content",
				Instruction: "Verify each external link resolves and is still authoritative.",
				Rationale:   "External links rot; each release should re-verify them.",
				Severity:    f.Severity,
				Confidence:  0.75,
				Priority:    priorityFor(f.Severity),
			})
		case types.FindingHeadingStructure:
			drafts = append(drafts, types.RecommendationDraft{
				Type:        "structure",
				Title:       "Flatten heading level jump",
				Description: fmt.Sprintf("Heading levels jump by more than one at line %d.", f.Line),
				Scope:       "content",
				Instruction: "Adjust heading levels so each level increases by at most one.",
				Rationale:   "Skipped heading levels break document outlines.",
				Severity:    f.Severity,
				Confidence:  0.7,
				Priority:    priorityFor(f.Severity),
			})
		case types.FindingTitleConsistency:
			drafts = append(drafts, types.RecommendationDraft{
				Type:        "title",
				Title:       "Align body title with front matter",
				Description: "The front matter title does not appear in the document body.",
				Scope:       "content",
				Instruction: "Repeat the front matter title as the document's top heading.",
				Rationale:   "Readers expect the rendered title to match the metadata.",
				Severity:    f.Severity,
				Confidence:  0.7,
				Priority:    priorityFor(f.Severity),
			})
		}
	}
	return drafts
}

func findingSummary(f types.Finding) string {
	if f.Message != "" {
		return f.Message
	}
	return fmt.Sprintf("Validator reported %s on field %q.", f.Type, f.Field)
}
