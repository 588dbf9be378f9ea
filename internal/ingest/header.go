package ingest

import (
	"fmt"

	"docvet/internal/rules"
	"docvet/internal/types"
)

// typeName reports the rule-document type name of a decoded header value.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64:
		return "integer"
	case float64:
		return "float"
	case []any:
		return "list"
	case map[string]any:
		return "map"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// typeMatches reports whether a header value satisfies an expected type
// from the rule document. Integers satisfy float expectations; every other
// pairing is exact. Type names accept the common synonyms rule authors use.
func typeMatches(expected string, v any) bool {
	actual := typeName(v)
	switch expected {
	case "string", "str":
		return actual == "string"
	case "int", "integer":
		return actual == "integer"
	case "float", "number":
		return actual == "float" || actual == "integer"
	case "bool", "boolean":
		return actual == "boolean"
	case "list", "array":
		return actual == "list"
	case "map", "dict", "object":
		return actual == "map"
	default:
		return actual == expected
	}
}

// validateHeader checks decoded header fields against one family's
// requirements and returns the findings in check order: required fields,
// field types, enum fields, forbidden fields.
func validateHeader(header map[string]any, req rules.Requirements) []types.Finding {
	var findings []types.Finding

	for _, field := range req.RequiredFields {
		if _, ok := header[field]; !ok {
			findings = append(findings, types.Finding{
				Type:     types.FindingMissingRequiredField,
				Field:    field,
				Severity: types.SeverityError,
				Message:  fmt.Sprintf("Required field %q is missing", field),
			})
		}
	}

	for field, expected := range req.FieldTypes {
		v, ok := header[field]
		if !ok {
			continue
		}
		if !typeMatches(expected, v) {
			findings = append(findings, types.Finding{
				Type:         types.FindingInvalidFieldType,
				Field:        field,
				Severity:     types.SeverityError,
				Message:      fmt.Sprintf("Field %q has type %s, expected %s", field, typeName(v), expected),
				ExpectedType: expected,
				ActualType:   typeName(v),
			})
		}
	}

	for field, valid := range req.EnumFields {
		v, ok := header[field]
		if !ok {
			continue
		}
		if !enumContains(valid, v) {
			findings = append(findings, types.Finding{
				Type:        types.FindingInvalidEnumValue,
				Field:       field,
				Severity:    types.SeverityError,
				Message:     fmt.Sprintf("Field %q value %v is not one of %v", field, v, valid),
				Value:       v,
				ValidValues: valid,
			})
		}
	}

	for _, field := range req.ForbiddenFields {
		if _, ok := header[field]; ok {
			findings = append(findings, types.Finding{
				Type:     types.FindingForbiddenField,
				Field:    field,
				Severity: types.SeverityWarning,
				Message:  fmt.Sprintf("Field %q is not allowed here", field),
			})
		}
	}

	return findings
}

// enumContains compares by rendered value, so 1 and 1.0 or quoted and bare
// strings in the rule document both match.
func enumContains(valid []any, v any) bool {
	want := fmt.Sprintf("%v", v)
	for _, candidate := range valid {
		if fmt.Sprintf("%v", candidate) == want {
			return true
		}
	}
	return false
}
