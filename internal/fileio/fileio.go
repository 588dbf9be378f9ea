// Package fileio handles all filesystem access for docvet: reads that
// preserve line endings, atomic CRLF-normalized writes, markdown directory
// walks, path safety checks, backups, and scoped temp files.
package fileio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docvet/internal/logging"
)

// ReadFile returns the file's content as a string with line endings
// preserved exactly as stored.
func ReadFile(path string) (string, error) {
	if err := CheckPath(path); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// NormalizeCRLF rewrites all line endings to CRLF and guarantees a trailing
// CRLF. Lone CR endings are treated as line breaks too.
func NormalizeCRLF(content string) string {
	if content == "" {
		return "\r\n"
	}
	s := strings.ReplaceAll(content, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	if !strings.HasSuffix(s, "\r\n") {
		s += "\r\n"
	}
	return s
}

// AtomicWrite writes content to path with CRLF normalization. The write goes
// to a temp file in the target directory which is fsynced and renamed over
// the target, so a crash leaves the old file fully intact.
func AtomicWrite(path, content string) error {
	if err := CheckWritePath(path); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".docvet-write-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.WriteString(NormalizeCRLF(content)); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	logging.FileIODebug("atomic write: %s (%d bytes)", path, len(content))
	return nil
}

// BackupTimeLayout names backup siblings; local time by convention.
const BackupTimeLayout = "20060102_150405"

// Backup copies path to a timestamped sibling and returns the backup path.
func Backup(path string) (string, error) {
	content, err := ReadFile(path)
	if err != nil {
		return "", err
	}

	backupPath := fmt.Sprintf("%s.bak_%s", path, time.Now().Format(BackupTimeLayout))
	if err := os.WriteFile(backupPath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write backup %s: %w", backupPath, err)
	}

	logging.FileIO("backup created: %s", backupPath)
	return backupPath, nil
}
