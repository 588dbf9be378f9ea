package fileio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"docvet/internal/logging"
)

// WalkMarkdown returns the markdown files under root in sorted order.
// With recursive false only the top level is scanned. Symlinked
// directories are not followed.
func WalkMarkdown(root string, recursive bool) ([]string, error) {
	if err := CheckPath(root); err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	pattern := filepath.Join(root, "*.md")
	if recursive {
		pattern = filepath.Join(root, "**", "*.md")
	}

	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithNoFollow())
	if err != nil {
		return nil, fmt.Errorf("glob %s failed: %w", pattern, err)
	}

	files := matches[:0]
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	sort.Strings(files)

	logging.FileIODebug("walk %s (recursive=%v): %d markdown files", root, recursive, len(files))
	return files, nil
}
