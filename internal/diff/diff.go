// Package diff computes before/after comparisons for enhancement results
// using the sergi/go-diff engine: a unified diff for storage, side-by-side
// rows for previews, and line counts for statistics.
package diff

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// RowType classifies one side-by-side row.
type RowType string

const (
	RowUnchanged RowType = "unchanged"
	RowAddition  RowType = "addition"
	RowDeletion  RowType = "deletion"
)

// Row is a single line of the side-by-side view.
type Row struct {
	Type    RowType `json:"type"`
	Content string  `json:"content"`
}

// Result is a full comparison between two texts. Modifications is
// min(Additions, Deletions); TotalChanges is their sum.
type Result struct {
	UnifiedDiff   string `json:"unified_diff"`
	SideBySide    []Row  `json:"side_by_side"`
	Additions     int    `json:"additions_count"`
	Deletions     int    `json:"deletions_count"`
	Modifications int    `json:"modifications_count"`
	TotalChanges  int    `json:"total_changes"`
}

// lineType classifies one diff operation internally.
type lineType int

const (
	lineContext lineType = iota
	lineAdded
	lineRemoved
)

// operation is a single line-level diff step.
type operation struct {
	typ     lineType
	oldLine int
	newLine int
	content string
}

// hunk groups nearby changes with context for unified rendering.
type hunk struct {
	oldStart int
	oldCount int
	newStart int
	newCount int
	lines    []operation
}

// Engine computes diffs with a cache keyed on the input pair, so repeated
// previews of the same revision are free.
type Engine struct {
	dmp   *diffmatchpatch.DiffMatchPatch
	cache sync.Map
}

type cacheKey struct {
	oldHash uint64
	newHash uint64
}

// NewEngine creates a diff engine tuned for document content.
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // favor accuracy over bounded runtime
	return &Engine{dmp: dmp}
}

// DefaultEngine is a singleton engine for general use.
var DefaultEngine = NewEngine()

// Compare diffs oldContent against newContent. Labels name the two sides in
// the unified header (typically the file path).
func (e *Engine) Compare(oldLabel, newLabel, oldContent, newContent string) *Result {
	key := cacheKey{fnv64(oldContent), fnv64(newContent)}
	if cached, ok := e.cache.Load(key); ok {
		if r, ok := cached.(*Result); ok {
			return r
		}
	}

	// Line-level reduction avoids newline boundary artifacts when
	// converting character diffs back to line operations.
	a, b, lineArray := e.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCleanupSemantic(diffs)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	ops := diffsToOperations(diffs)

	result := &Result{
		SideBySide: make([]Row, 0, len(ops)),
	}
	for _, op := range ops {
		switch op.typ {
		case lineAdded:
			result.Additions++
			result.SideBySide = append(result.SideBySide, Row{Type: RowAddition, Content: op.content})
		case lineRemoved:
			result.Deletions++
			result.SideBySide = append(result.SideBySide, Row{Type: RowDeletion, Content: op.content})
		default:
			result.SideBySide = append(result.SideBySide, Row{Type: RowUnchanged, Content: op.content})
		}
	}
	result.Modifications = min(result.Additions, result.Deletions)
	result.TotalChanges = result.Additions + result.Deletions

	hunks := groupIntoHunks(ops, 3)
	result.UnifiedDiff = renderUnified(oldLabel, newLabel, hunks)

	e.cache.Store(key, result)
	return result
}

// Compare is a convenience function using the default engine.
func Compare(oldLabel, newLabel, oldContent, newContent string) *Result {
	return DefaultEngine.Compare(oldLabel, newLabel, oldContent, newContent)
}

// ClearCache drops all cached comparisons.
func (e *Engine) ClearCache() {
	e.cache = sync.Map{}
}

// CacheSize returns the number of cached comparisons.
func (e *Engine) CacheSize() int {
	n := 0
	e.cache.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// diffsToOperations converts diffmatchpatch diffs to line-based operations.
func diffsToOperations(diffs []diffmatchpatch.Diff) []operation {
	operations := make([]operation, 0)
	oldLine := 0
	newLine := 0

	for _, diff := range diffs {
		lines := strings.Split(diff.Text, "\n")

		if len(lines) == 1 && lines[0] == "" && diff.Type != diffmatchpatch.DiffEqual {
			continue
		}

		// Drop the empty tail the split produces for newline-terminated text.
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}

		for _, line := range lines {
			switch diff.Type {
			case diffmatchpatch.DiffEqual:
				operations = append(operations, operation{typ: lineContext, oldLine: oldLine, newLine: newLine, content: line})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				operations = append(operations, operation{typ: lineRemoved, oldLine: oldLine, newLine: -1, content: line})
				oldLine++
			case diffmatchpatch.DiffInsert:
				operations = append(operations, operation{typ: lineAdded, oldLine: -1, newLine: newLine, content: line})
				newLine++
			}
		}
	}

	return operations
}

// groupIntoHunks groups operations into hunks with surrounding context.
func groupIntoHunks(ops []operation, contextLines int) []hunk {
	if len(ops) == 0 {
		return nil
	}

	hunks := make([]hunk, 0)
	var current *hunk
	lastChangeIdx := -1

	for i, op := range ops {
		isChange := op.typ != lineContext

		if isChange {
			if current == nil {
				current = &hunk{lines: make([]operation, 0)}

				start := i - contextLines
				if start < 0 {
					start = 0
				}
				for j := start; j < i; j++ {
					if ops[j].typ == lineContext {
						current.lines = append(current.lines, ops[j])
					}
				}

				current.oldStart = ops[start].oldLine + 1
				current.newStart = ops[start].newLine + 1
				if ops[start].oldLine < 0 {
					current.oldStart = 0
				}
				if ops[start].newLine < 0 {
					current.newStart = 0
				}
			}
			lastChangeIdx = i
		}

		if current != nil {
			current.lines = append(current.lines, op)

			if op.typ == lineContext && i-lastChangeIdx > contextLines {
				trimTo := len(current.lines) - (i - lastChangeIdx - contextLines)
				if trimTo > 0 && trimTo < len(current.lines) {
					current.lines = current.lines[:trimTo]
				}
				current.computeCounts()
				hunks = append(hunks, *current)
				current = nil
			}
		}
	}

	if current != nil && len(current.lines) > 0 {
		current.computeCounts()
		hunks = append(hunks, *current)
	}

	return hunks
}

func (h *hunk) computeCounts() {
	for _, line := range h.lines {
		if line.typ == lineRemoved || line.typ == lineContext {
			h.oldCount++
		}
		if line.typ == lineAdded || line.typ == lineContext {
			h.newCount++
		}
	}
}

// renderUnified renders hunks in unified diff format. Identical inputs
// produce an empty string.
func renderUnified(oldLabel, newLabel string, hunks []hunk) string {
	if len(hunks) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n", oldLabel)
	fmt.Fprintf(&sb, "+++ b/%s\n", newLabel)

	for _, h := range hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.oldStart, h.oldCount, h.newStart, h.newCount)
		for _, line := range h.lines {
			switch line.typ {
			case lineAdded:
				sb.WriteString("+")
			case lineRemoved:
				sb.WriteString("-")
			default:
				sb.WriteString(" ")
			}
			sb.WriteString(line.content)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// fnv64 computes an FNV-1a hash for cache keys.
func fnv64(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	hash := uint64(offset64)
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return hash
}
