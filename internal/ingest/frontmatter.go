package ingest

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// headerFence delimits the front-matter region. The region must start at
// the first byte of the file; a fence further down is ordinary content.
const headerFence = "---"

// SplitFrontMatter separates a document into its front-matter text and
// body. hasHeader reports whether a fenced region was found at all; when
// false the whole document is body. Line endings inside both parts are
// returned exactly as stored.
func SplitFrontMatter(content string) (header, body string, hasHeader bool) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(normalized, headerFence+"\n") {
		return "", content, false
	}

	rest := normalized[len(headerFence)+1:]
	end := strings.Index(rest, "\n"+headerFence+"\n")
	if end < 0 {
		// Closing fence as the very last line, without trailing newline.
		if strings.HasSuffix(rest, "\n"+headerFence) {
			return rest[:len(rest)-len(headerFence)-1], "", true
		}
		return "", content, false
	}

	header = rest[:end]
	body = rest[end+len(headerFence)+2:]
	return header, body, true
}

// ParseHeader decodes front-matter text into a key-value map. Scalars come
// back as string, int, float64 or bool; sequences as []any; mappings as
// map[string]any.
func ParseHeader(text string) (map[string]any, error) {
	fields := map[string]any{}
	if strings.TrimSpace(text) == "" {
		return fields, nil
	}
	if err := yaml.Unmarshal([]byte(text), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
