package rules

import (
	"strings"

	"docvet/internal/logging"
)

// DefaultFamily is the fallback when nothing else resolves.
const DefaultFamily = "words"

// pathHints maps path substrings to families, checked in order.
var pathHints = []struct {
	family     string
	substrings []string
}{
	{"words", []string{"word", "vocab", "dictionary"}},
	{"code", []string{"code", "programming", "script"}},
	{"config", []string{"config", "setting"}},
}

// DetectFamily resolves the family of a file: an explicit header `family`
// field wins, then path substring heuristics, then discovery over the rule
// files on disk (preferring "words", else the lexicographically first).
func (m *Manager) DetectFamily(header map[string]any, path string) string {
	if header != nil {
		if v, ok := header["family"]; ok {
			if family, ok := v.(string); ok && family != "" {
				logging.RulesDebug("family from header: %s (%s)", family, path)
				return family
			}
		}
	}

	lower := strings.ToLower(path)
	for _, hint := range pathHints {
		for _, sub := range hint.substrings {
			if strings.Contains(lower, sub) {
				logging.RulesDebug("family from path: %s (%s)", hint.family, path)
				return hint.family
			}
		}
	}

	families, err := m.Families()
	if err == nil && len(families) > 0 {
		for _, f := range families {
			if f == DefaultFamily {
				return DefaultFamily
			}
		}
		// Families() is sorted, so the first entry is the lexicographic pick.
		return families[0]
	}

	return DefaultFamily
}
