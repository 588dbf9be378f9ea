package fileio

import (
	"os"
	"path/filepath"
	"strings"

	"docvet/internal/types"
)

// protectedRoots are system locations docvet never reads or writes.
var protectedRoots = []string{
	"/etc", "/sys", "/proc", "/dev", "/boot", "/bin", "/sbin", "/usr", "/lib",
	`C:\Windows`, `C:\Program Files`,
}

// forbiddenFragments reject traversal and shell-expansion style paths
// regardless of where they point after cleaning.
var forbiddenFragments = []string{"..", "~", "$", "%"}

// CheckPath validates a path against the traversal and protected-root
// rules. Violations surface as invalid-params errors.
func CheckPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return types.NewInvalidParams("Empty file path")
	}

	for _, fragment := range forbiddenFragments {
		if strings.Contains(path, fragment) {
			return types.NewInvalidParams("Unsafe path %q: contains %q", path, fragment)
		}
	}

	clean := filepath.Clean(path)
	for _, root := range protectedRoots {
		if clean == root || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return types.NewInvalidParams("Unsafe path %q: protected system root", path)
		}
	}

	return nil
}

// CheckWritePath validates a write target: the path must be safe and its
// parent directory must exist or be creatable.
func CheckWritePath(path string) error {
	if err := CheckPath(path); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return types.NewInvalidParams("Parent of %q is not a directory", path)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return types.NewInvalidParams("Parent of %q is not accessible: %v", path, err)
	}

	// Parent missing: require some existing ancestor to be a writable
	// directory so MkdirAll can succeed.
	for probe := dir; ; {
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
		if info, err := os.Stat(probe); err == nil {
			if !info.IsDir() {
				return types.NewInvalidParams("Ancestor %q of %q is not a directory", probe, path)
			}
			return nil
		}
	}

	return types.NewInvalidParams("No writable ancestor for %q", path)
}

// IsSafePath reports whether path passes CheckPath.
func IsSafePath(path string) bool {
	return CheckPath(path) == nil
}
