package fileio

import (
	"fmt"
	"os"
	"path/filepath"
)

// TempScope is a throwaway directory holding one content file, used by
// validate_content so raw text can run through the file pipeline. Close
// removes the whole scope; callers defer it so release happens on every
// exit path.
type TempScope struct {
	dir  string
	path string
}

// NewTempScope materializes content into a scoped temp file. baseDir
// empty means the system temp directory. name is the file name inside the
// scope (defaulting to temp.md).
func NewTempScope(baseDir, name, content string) (*TempScope, error) {
	if name == "" {
		name = "temp.md"
	}
	if baseDir == "" {
		baseDir = os.TempDir()
	}

	dir, err := os.MkdirTemp(baseDir, "docvet-content-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp scope: %w", err)
	}

	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to write temp content: %w", err)
	}

	return &TempScope{dir: dir, path: path}, nil
}

// Path returns the scoped file's location.
func (t *TempScope) Path() string {
	return t.path
}

// Close removes the scope and everything in it.
func (t *TempScope) Close() error {
	if t.dir == "" {
		return nil
	}
	err := os.RemoveAll(t.dir)
	t.dir = ""
	return err
}
