package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"docvet/internal/types"
)

var urlRe = regexp.MustCompile(`https?://[^\s)\]>"']+`)

// checkExternalLinks collects every http(s) URL in the body into a single
// finding so a link-heavy document produces one row, not dozens.
func checkExternalLinks(body string) []types.Finding {
	links := urlRe.FindAllString(body, -1)
	if len(links) == 0 {
		return nil
	}
	return []types.Finding{{
		Type:     types.FindingExternalLinks,
		Severity: types.SeverityWarning,
		Message:  fmt.Sprintf("Document contains %d external link(s); verify they are reachable", len(links)),
		Links:    links,
		Count:    len(links),
	}}
}

// fenceMarker reports whether a line opens or closes a code fence and, when
// opening, whether a language tag follows the marker.
func fenceMarker(line string) (isFence bool, tagged bool) {
	trimmed := strings.TrimLeft(line, " \t")
	var marker string
	switch {
	case strings.HasPrefix(trimmed, "```"):
		marker = "```"
	case strings.HasPrefix(trimmed, "~~~"):
		marker = "~~~"
	default:
		return false, false
	}
	rest := strings.TrimSpace(strings.TrimLeft(trimmed, string(marker[0])))
	return true, rest != ""
}

// checkCodeLanguage flags every opening fence without a language tag.
// Line numbers are relative to the body, 1-based.
func checkCodeLanguage(body string) []types.Finding {
	var findings []types.Finding
	inFence := false
	for i, line := range strings.Split(body, "\n") {
		isFence, tagged := fenceMarker(line)
		if !isFence {
			continue
		}
		if inFence {
			inFence = false
			continue
		}
		inFence = true
		if !tagged {
			findings = append(findings, types.Finding{
				Type:     types.FindingMissingCodeLanguage,
				Severity: types.SeverityInfo,
				Message:  fmt.Sprintf("Code block at line %d has no language tag", i+1),
				Line:     i + 1,
			})
		}
	}
	return findings
}

// checkHeadingStructure flags heading-level jumps of more than one, e.g.
// an H2 followed directly by an H4. The first heading in the document may
// sit at any level; fenced code is ignored.
func checkHeadingStructure(body string) []types.Finding {
	var findings []types.Finding
	prev := 0
	inFence := false
	for i, line := range strings.Split(body, "\n") {
		if isFence, _ := fenceMarker(line); isFence {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		level := headingLevel(line)
		if level == 0 {
			continue
		}
		if prev > 0 && level > prev+1 {
			findings = append(findings, types.Finding{
				Type:     types.FindingHeadingStructure,
				Severity: types.SeverityInfo,
				Message:  fmt.Sprintf("Heading at line %d jumps from level %d to %d", i+1, prev, level),
				Line:     i + 1,
			})
		}
		prev = level
	}
	return findings
}

// headingLevel returns 1-6 for an ATX heading line, 0 otherwise. A heading
// needs whitespace after the hashes per CommonMark.
func headingLevel(line string) int {
	trimmed := strings.TrimLeft(line, " ")
	n := 0
	for n < len(trimmed) && trimmed[n] == '#' {
		n++
	}
	if n == 0 || n > 6 {
		return 0
	}
	rest := trimmed[n:]
	if rest != "" && !strings.HasPrefix(rest, " ") && !strings.HasPrefix(rest, "\t") {
		return 0
	}
	return n
}

// checkTitleConsistency reports when the header declares a title that never
// appears in the body text.
func checkTitleConsistency(header map[string]any, body string) []types.Finding {
	raw, ok := header["title"]
	if !ok {
		return nil
	}
	title, ok := raw.(string)
	if !ok || strings.TrimSpace(title) == "" {
		return nil
	}
	if strings.Contains(strings.ToLower(body), strings.ToLower(strings.TrimSpace(title))) {
		return nil
	}
	return []types.Finding{{
		Type:     types.FindingTitleConsistency,
		Severity: types.SeverityInfo,
		Message:  fmt.Sprintf("Header title %q does not appear in the document body", title),
	}}
}
