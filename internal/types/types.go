// Package types provides shared type definitions used across docvet packages.
// This package exists to break import cycles between the server, store, and
// workflow layers. Types in this package should be foundational data
// structures with no complex dependencies.
package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns an opaque 128-bit random identifier as 32 lowercase hex
// characters. Identifiers are never interpreted; uniqueness is the only
// contract.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Now returns the current UTC time truncated to millisecond precision.
// All persisted timestamps go through this so exports and database rows
// agree on precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// TimeLayout is the wire format for timestamps: UTC with milliseconds.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders a timestamp in the wire format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a wire-format timestamp. It accepts RFC 3339 input with
// any sub-second precision and normalizes to UTC milliseconds.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(time.Millisecond), nil
}

// =============================================================================
// SEVERITY
// =============================================================================

// Severity classifies a finding or a whole validation record.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// SeverityRank orders severities for roll-up (error > warning > info).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// MaxSeverity returns the higher-ranked of two severities.
func MaxSeverity(a, b Severity) Severity {
	if SeverityRank(b) > SeverityRank(a) {
		return b
	}
	return a
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationStatus is the lifecycle state of a validation record.
// Stored lowercase; user-facing messages print the upper-cased form.
type ValidationStatus string

const (
	StatusPass     ValidationStatus = "pass"
	StatusFail     ValidationStatus = "fail"
	StatusApproved ValidationStatus = "approved"
	StatusRejected ValidationStatus = "rejected"
	StatusEnhanced ValidationStatus = "enhanced"
)

// ValidStatuses lists every accepted validation status.
var ValidStatuses = []ValidationStatus{
	StatusPass, StatusFail, StatusApproved, StatusRejected, StatusEnhanced,
}

// IsValidStatus reports whether s is a known validation status.
func IsValidStatus(s string) bool {
	for _, v := range ValidStatuses {
		if string(v) == s {
			return true
		}
	}
	return false
}

// Display renders a status for error messages ("approved" -> "APPROVED").
func (s ValidationStatus) Display() string {
	return strings.ToUpper(string(s))
}

// Finding is a single validator observation. Optional fields are populated
// per finding type: field checks carry Field, type checks carry the two type
// names, enum checks carry Value and ValidValues, link checks carry Links
// and Count, structure checks carry Line.
type Finding struct {
	Type         string   `json:"type"`
	Field        string   `json:"field,omitempty"`
	Severity     Severity `json:"severity"`
	Message      string   `json:"message,omitempty"`
	ExpectedType string   `json:"expected_type,omitempty"`
	ActualType   string   `json:"actual_type,omitempty"`
	Value        any      `json:"value,omitempty"`
	ValidValues  []any    `json:"valid_values,omitempty"`
	Links        []string `json:"links,omitempty"`
	Count        int      `json:"count,omitempty"`
	Line         int      `json:"line,omitempty"`
}

// Finding types produced by the ingestion pipeline.
const (
	FindingMissingRequiredField = "missing_required_field"
	FindingInvalidFieldType     = "invalid_field_type"
	FindingInvalidEnumValue     = "invalid_enum_value"
	FindingForbiddenField       = "forbidden_field"
	FindingInvalidHeaderSyntax  = "invalid_header_syntax"
	FindingExternalLinks        = "external_links"
	FindingMissingCodeLanguage  = "missing_code_language"
	FindingHeadingStructure     = "heading_structure"
	FindingTitleConsistency     = "title_consistency"
)

// Validator categories a caller can select via validation_types.
const (
	ValidatorHeader  = "header"
	ValidatorContent = "content"
)

// FilePathUnknown marks records validated from raw content with no caller
// supplied path. Enhancement refuses such records.
const FilePathUnknown = "unknown"

// ValidationRecord is the persisted outcome of validating one file or
// content blob. ValidationResults holds per-category findings plus the flat
// all_findings list; after enhancement it additionally carries
// original_content, enhanced_content, diff, enhancement_timestamp and
// model_used.
type ValidationRecord struct {
	ID                string           `json:"id"`
	FilePath          string           `json:"file_path"`
	Status            ValidationStatus `json:"status"`
	Severity          Severity         `json:"severity"`
	RulesApplied      []string         `json:"rules_applied"`
	ValidationTypes   []string         `json:"validation_types"`
	ValidationResults map[string]any   `json:"validation_results"`
	Content           string           `json:"content"`
	Notes             string           `json:"notes"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// AppendNote adds a timestamped line to the record's append-only notes.
func (v *ValidationRecord) AppendNote(note string) {
	line := "[" + FormatTime(Now()) + "] " + note
	if v.Notes == "" {
		v.Notes = line
		return
	}
	v.Notes += "\n" + line
}

// =============================================================================
// RECOMMENDATIONS
// =============================================================================

// RecommendationStatus is the review lifecycle of a recommendation.
type RecommendationStatus string

const (
	RecPending  RecommendationStatus = "pending"
	RecApproved RecommendationStatus = "approved"
	RecRejected RecommendationStatus = "rejected"
	RecApplied  RecommendationStatus = "applied"
)

// Recommendation is a candidate textual edit with provenance and confidence.
type Recommendation struct {
	ID              string               `json:"id"`
	ValidationID    string               `json:"validation_id"`
	Type            string               `json:"type"`
	Title           string               `json:"title"`
	Description     string               `json:"description"`
	Scope           string               `json:"scope"`
	Instruction     string               `json:"instruction"`
	Rationale       string               `json:"rationale"`
	Severity        Severity             `json:"severity"`
	OriginalContent string               `json:"original_content"`
	ProposedContent string               `json:"proposed_content"`
	Diff            string               `json:"diff"`
	Confidence      float64              `json:"confidence"`
	Priority        int                  `json:"priority"`
	Status          RecommendationStatus `json:"status"`
	ReviewedBy      string               `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time           `json:"reviewed_at,omitempty"`
	ReviewNotes     string               `json:"review_notes,omitempty"`
	AppliedAt       *time.Time           `json:"applied_at,omitempty"`
	AppliedBy       string               `json:"applied_by,omitempty"`
	Metadata        map[string]any       `json:"metadata,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// RecommendationSnapshot is the input handed to a recommendation generator:
// the validation's findings plus enough context to propose edits.
type RecommendationSnapshot struct {
	ValidationID string    `json:"validation_id"`
	FilePath     string    `json:"file_path"`
	Content      string    `json:"content"`
	Severity     Severity  `json:"severity"`
	Findings     []Finding `json:"findings"`
}

// RecommendationDraft is one proposal returned by a generator before
// persistence assigns it an id and a pending status.
type RecommendationDraft struct {
	Type            string         `json:"type"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Scope           string         `json:"scope"`
	Instruction     string         `json:"instruction"`
	Rationale       string         `json:"rationale"`
	Severity        Severity       `json:"severity"`
	OriginalContent string         `json:"original_content"`
	ProposedContent string         `json:"proposed_content"`
	Confidence      float64        `json:"confidence"`
	Priority        int            `json:"priority"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// =============================================================================
// WORKFLOWS
// =============================================================================

// WorkflowType names a long-running job shape.
type WorkflowType string

const (
	WorkflowValidateDirectory   WorkflowType = "validate_directory"
	WorkflowBatchEnhance        WorkflowType = "batch_enhance"
	WorkflowRecommendationBatch WorkflowType = "recommendation_batch"
	WorkflowFullAudit           WorkflowType = "full_audit"
)

// ValidWorkflowTypes lists every accepted workflow type.
var ValidWorkflowTypes = []WorkflowType{
	WorkflowValidateDirectory, WorkflowBatchEnhance,
	WorkflowRecommendationBatch, WorkflowFullAudit,
}

// IsValidWorkflowType reports whether t is a known workflow type.
func IsValidWorkflowType(t string) bool {
	for _, v := range ValidWorkflowTypes {
		if string(v) == t {
			return true
		}
	}
	return false
}

// WorkflowState is the lifecycle state of a workflow.
type WorkflowState string

const (
	WorkflowPending   WorkflowState = "pending"
	WorkflowRunning   WorkflowState = "running"
	WorkflowPaused    WorkflowState = "paused"
	WorkflowCompleted WorkflowState = "completed"
	WorkflowFailed    WorkflowState = "failed"
	WorkflowCancelled WorkflowState = "cancelled"
)

// IsTerminal reports whether the state admits no further transitions.
func (s WorkflowState) IsTerminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed || s == WorkflowCancelled
}

// Workflow is a long-running multi-step operation with its own state machine.
type Workflow struct {
	ID              string         `json:"id"`
	Type            WorkflowType   `json:"type"`
	State           WorkflowState  `json:"state"`
	InputParams     map[string]any `json:"input_params"`
	ProgressPercent float64        `json:"progress_percent"`
	CurrentStep     int            `json:"current_step"`
	TotalSteps      int            `json:"total_steps"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// =============================================================================
// ADMIN ENTITIES
// =============================================================================

// AuditEntry records one mutating operation for the audit log.
type AuditEntry struct {
	ID        string         `json:"id"`
	Operation string         `json:"operation"`
	User      string         `json:"user"`
	Status    string         `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// PerformanceSample records one handler invocation's duration.
type PerformanceSample struct {
	ID         string    `json:"id"`
	Operation  string    `json:"operation"`
	DurationMS float64   `json:"duration_ms"`
	Success    bool      `json:"success"`
	Timestamp  time.Time `json:"timestamp"`
}

// CacheEntry is one persisted cache row, grouped by category for selective
// clearing.
type CacheEntry struct {
	Key       string    `json:"key"`
	Category  string    `json:"category"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MaintenanceFlag is one maintenance-mode window. The flag is active while
// DisabledAt is nil.
type MaintenanceFlag struct {
	ID         string     `json:"id"`
	Reason     string     `json:"reason"`
	EnabledBy  string     `json:"enabled_by"`
	EnabledAt  time.Time  `json:"enabled_at"`
	DisabledAt *time.Time `json:"disabled_at,omitempty"`
}

// Checkpoint is a named snapshot of aggregate system counters.
type Checkpoint struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
