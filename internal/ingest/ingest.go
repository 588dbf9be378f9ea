// Package ingest turns markdown files into validation results. A run splits
// the document into front matter and body, resolves the rule family, applies
// the selected validators, and rolls the findings up into a severity and a
// pass/fail status ready for persistence.
package ingest

import (
	"encoding/json"
	"strings"

	"docvet/internal/fileio"
	"docvet/internal/logging"
	"docvet/internal/rules"
	"docvet/internal/types"
)

// Rule identifiers recorded on every validation so callers can see which
// checks actually ran.
const (
	RuleRequiredFields   = "header.required_fields"
	RuleFieldTypes       = "header.field_types"
	RuleEnumFields       = "header.enum_fields"
	RuleForbiddenFields  = "header.forbidden_fields"
	RuleExternalLinks    = "body.external_links"
	RuleCodeLanguage     = "body.code_language"
	RuleHeadingStructure = "body.heading_structure"
	RuleTitleConsistency = "body.title_consistency"
)

// Pipeline validates markdown content against family rule documents.
type Pipeline struct {
	rules *rules.Manager
}

// NewPipeline creates a pipeline over a rule manager.
func NewPipeline(rules *rules.Manager) *Pipeline {
	return &Pipeline{rules: rules}
}

// Result is the outcome of one pipeline run, before persistence.
type Result struct {
	FilePath        string
	Family          string
	Header          map[string]any
	Body            string
	Content         string
	HeaderFindings  []types.Finding
	ContentFindings []types.Finding
	AllFindings     []types.Finding
	Severity        types.Severity
	Status          types.ValidationStatus
	RulesApplied    []string
	ValidationTypes []string
}

// RunFile validates a file on disk. The path passes the write-safety check
// inside ReadFile; family may be empty to auto-detect.
func (p *Pipeline) RunFile(path, family string, validationTypes []string) (*Result, error) {
	content, err := fileio.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return p.RunContent(path, content, family, validationTypes)
}

// RunContent validates in-memory content labeled with a path. The label is
// only used for family detection and the persisted file_path; nothing is
// read from or written to it.
func (p *Pipeline) RunContent(label, content, family string, validationTypes []string) (*Result, error) {
	vtypes, err := normalizeTypes(validationTypes)
	if err != nil {
		return nil, err
	}

	r := &Result{
		FilePath:        label,
		Content:         content,
		ValidationTypes: vtypes,
	}

	header, body, hasHeader := SplitFrontMatter(content)
	r.Body = strings.ReplaceAll(body, "\r\n", "\n")

	var headerErr error
	if hasHeader {
		r.Header, headerErr = ParseHeader(header)
	}

	if family != "" {
		r.Family = family
	} else {
		r.Family = p.rules.DetectFamily(r.Header, label)
	}

	for _, vt := range vtypes {
		switch vt {
		case types.ValidatorHeader:
			p.runHeader(r, hasHeader, headerErr)
		case types.ValidatorContent:
			p.runContent(r)
		}
	}

	r.AllFindings = append(append([]types.Finding{}, r.HeaderFindings...), r.ContentFindings...)
	r.Severity, r.Status = rollUp(r.AllFindings)

	logging.IngestDebug("validated %s: family=%s findings=%d severity=%s status=%s",
		label, r.Family, len(r.AllFindings), r.Severity, r.Status)
	return r, nil
}

// runHeader applies the header validator. A syntactically broken header is
// one error finding and no rule checks; a missing rule document skips rule
// checks without failing the run.
func (p *Pipeline) runHeader(r *Result, hasHeader bool, headerErr error) {
	if headerErr != nil {
		r.HeaderFindings = append(r.HeaderFindings, types.Finding{
			Type:     types.FindingInvalidHeaderSyntax,
			Severity: types.SeverityError,
			Message:  "Front matter is not valid YAML: " + headerErr.Error(),
		})
		return
	}

	req, err := p.rules.Requirements(r.Family)
	if err != nil {
		logging.Ingest("no rule document for family %s, skipping header checks (%s)", r.Family, r.FilePath)
		return
	}

	header := r.Header
	if !hasHeader || header == nil {
		header = map[string]any{}
	}
	r.HeaderFindings = append(r.HeaderFindings, validateHeader(header, req)...)
	r.RulesApplied = append(r.RulesApplied,
		RuleRequiredFields, RuleFieldTypes, RuleEnumFields, RuleForbiddenFields)
}

// runContent applies the body validator's lexical checks.
func (p *Pipeline) runContent(r *Result) {
	r.ContentFindings = append(r.ContentFindings, checkExternalLinks(r.Body)...)
	r.ContentFindings = append(r.ContentFindings, checkCodeLanguage(r.Body)...)
	r.ContentFindings = append(r.ContentFindings, checkHeadingStructure(r.Body)...)
	r.ContentFindings = append(r.ContentFindings, checkTitleConsistency(r.Header, r.Body)...)
	r.RulesApplied = append(r.RulesApplied,
		RuleExternalLinks, RuleCodeLanguage, RuleHeadingStructure, RuleTitleConsistency)
}

// rollUp computes the record severity and status. One error finding fails
// the document; warnings and infos accumulate but still pass.
func rollUp(findings []types.Finding) (types.Severity, types.ValidationStatus) {
	severity := types.SeverityInfo
	for _, f := range findings {
		severity = types.MaxSeverity(severity, f.Severity)
		if severity == types.SeverityError {
			break
		}
	}
	if severity == types.SeverityError {
		return severity, types.StatusFail
	}
	return severity, types.StatusPass
}

// normalizeTypes lowercases, deduplicates, and validates the requested
// validator names. An empty request selects every validator.
func normalizeTypes(validationTypes []string) ([]string, error) {
	if len(validationTypes) == 0 {
		return []string{types.ValidatorHeader, types.ValidatorContent}, nil
	}
	seen := make(map[string]bool, len(validationTypes))
	out := make([]string, 0, len(validationTypes))
	for _, vt := range validationTypes {
		name := strings.ToLower(strings.TrimSpace(vt))
		switch name {
		case types.ValidatorHeader, types.ValidatorContent:
		default:
			return nil, types.NewInvalidParams("Unknown validation type: %s", vt)
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out, nil
}

// BuildRecord converts a result into a persistable validation record.
// Findings are stored as plain maps so the JSON column round-trips without
// typed decoding.
func (r *Result) BuildRecord() *types.ValidationRecord {
	now := types.Now()
	return &types.ValidationRecord{
		ID:              types.NewID(),
		FilePath:        r.FilePath,
		Status:          r.Status,
		Severity:        r.Severity,
		RulesApplied:    append([]string{}, r.RulesApplied...),
		ValidationTypes: append([]string{}, r.ValidationTypes...),
		ValidationResults: map[string]any{
			"family":       r.Family,
			"header":       findingMaps(r.HeaderFindings),
			"content":      findingMaps(r.ContentFindings),
			"all_findings": findingMaps(r.AllFindings),
		},
		Content:   r.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// findingMaps renders findings as generic maps via a JSON round-trip, which
// keeps omitempty behavior identical to the wire form.
func findingMaps(findings []types.Finding) []any {
	out := make([]any, 0, len(findings))
	for _, f := range findings {
		raw, err := json.Marshal(f)
		if err != nil {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

// FindingsOf decodes the all_findings list from a stored validation record
// back into typed findings. Records written by older builds may lack the
// key; that decodes as an empty list.
func FindingsOf(record *types.ValidationRecord) []types.Finding {
	if record == nil || record.ValidationResults == nil {
		return nil
	}
	raw, ok := record.ValidationResults["all_findings"]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var findings []types.Finding
	if err := json.Unmarshal(data, &findings); err != nil {
		return nil
	}
	return findings
}

// FamilyOf reads the family recorded in a validation's results.
func FamilyOf(record *types.ValidationRecord) string {
	if record == nil || record.ValidationResults == nil {
		return ""
	}
	if family, ok := record.ValidationResults["family"].(string); ok {
		return family
	}
	return ""
}
