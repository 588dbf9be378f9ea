package fileio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docvet/internal/types"
)

func TestNormalizeCRLF(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lf", "a\nb\n", "a\r\nb\r\n"},
		{"crlf unchanged", "a\r\nb\r\n", "a\r\nb\r\n"},
		{"mixed", "a\r\nb\nc", "a\r\nb\r\nc\r\n"},
		{"lone cr", "a\rb", "a\r\nb\r\n"},
		{"no trailing newline", "a", "a\r\n"},
		{"empty", "", "\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeCRLF(tt.in); got != tt.want {
				t.Errorf("NormalizeCRLF(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestReadFilePreservesEndings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	content := "line1\r\nline2\nline3"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got != content {
		t.Errorf("ReadFile() = %q, want endings preserved %q", got, content)
	}
}

func TestAtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	if err := os.WriteFile(path, []byte("old\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := AtomicWrite(path, "# Hi\n\nHello, world."); err != nil {
		t.Fatalf("AtomicWrite() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "# Hi\r\n\r\nHello, world.\r\n"
	if string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}

	// No temp residue left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".docvet-write-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestAtomicWriteCreatesParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "doc.md")
	if err := AtomicWrite(path, "x"); err != nil {
		t.Fatalf("AtomicWrite() error = %v", err)
	}
	if !FileExists(path) {
		t.Error("file should exist after write into created parents")
	}
}

func TestBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}

	backupPath, err := Backup(path)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	base := filepath.Base(backupPath)
	if !strings.HasPrefix(base, "doc.md.bak_") {
		t.Errorf("backup name = %q, want doc.md.bak_<stamp>", base)
	}
	stamp := strings.TrimPrefix(base, "doc.md.bak_")
	if len(stamp) != len("20060102_150405") {
		t.Errorf("backup stamp = %q, want YYYYMMDD_HHMMSS", stamp)
	}

	data, err := os.ReadFile(backupPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "content" {
		t.Errorf("backup content = %q", data)
	}
}

func TestCheckPath(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		wantOK bool
	}{
		{"plain relative", "docs/guide.md", true},
		{"plain absolute", "/tmp/docs/guide.md", true},
		{"traversal", "docs/../etc/passwd", false},
		{"home expansion", "~/docs/guide.md", false},
		{"dollar", "$HOME/guide.md", false},
		{"percent", "%TEMP%/guide.md", false},
		{"empty", "", false},
		{"whitespace", "   ", false},
		{"etc", "/etc/passwd", false},
		{"proc", "/proc/self/environ", false},
		{"usr", "/usr/lib/x.md", false},
		{"etc-prefix name", "/etcetera/x.md", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPath(tt.path)
			if (err == nil) != tt.wantOK {
				t.Errorf("CheckPath(%q) error = %v, wantOK %v", tt.path, err, tt.wantOK)
			}
			if err != nil {
				if types.KindOf(err) != types.KindInvalidParams {
					t.Errorf("CheckPath(%q) kind = %v, want invalid params", tt.path, types.KindOf(err))
				}
			}
		})
	}
}

func TestCheckWritePath(t *testing.T) {
	dir := t.TempDir()

	if err := CheckWritePath(filepath.Join(dir, "doc.md")); err != nil {
		t.Errorf("existing parent should be writable: %v", err)
	}
	if err := CheckWritePath(filepath.Join(dir, "a", "b", "doc.md")); err != nil {
		t.Errorf("creatable ancestor should pass: %v", err)
	}
	if err := CheckWritePath("/etc/doc.md"); err == nil {
		t.Error("protected root must fail")
	}
}

func TestWalkMarkdown(t *testing.T) {
	dir := t.TempDir()
	write := func(rel string) {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("# x\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("b.md")
	write("a.md")
	write("notes.txt")
	write("sub/c.md")
	write("sub/deep/d.md")

	t.Run("recursive", func(t *testing.T) {
		files, err := WalkMarkdown(dir, true)
		if err != nil {
			t.Fatalf("WalkMarkdown() error = %v", err)
		}
		if len(files) != 4 {
			t.Fatalf("got %d files, want 4: %v", len(files), files)
		}
		for i := 1; i < len(files); i++ {
			if files[i-1] >= files[i] {
				t.Errorf("files not sorted: %v", files)
			}
		}
	})

	t.Run("non-recursive", func(t *testing.T) {
		files, err := WalkMarkdown(dir, false)
		if err != nil {
			t.Fatalf("WalkMarkdown() error = %v", err)
		}
		if len(files) != 2 {
			t.Errorf("got %d files, want 2: %v", len(files), files)
		}
	})

	t.Run("empty dir", func(t *testing.T) {
		files, err := WalkMarkdown(t.TempDir(), true)
		if err != nil {
			t.Fatalf("WalkMarkdown() error = %v", err)
		}
		if len(files) != 0 {
			t.Errorf("got %d files, want 0", len(files))
		}
	})

	t.Run("missing dir", func(t *testing.T) {
		if _, err := WalkMarkdown(filepath.Join(dir, "absent"), true); err == nil {
			t.Error("missing directory should error")
		}
	})
}

func TestTempScope(t *testing.T) {
	scope, err := NewTempScope("", "virtual.md", "hello")
	if err != nil {
		t.Fatalf("NewTempScope() error = %v", err)
	}

	path := scope.Path()
	if filepath.Base(path) != "virtual.md" {
		t.Errorf("temp file name = %q", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("temp content = %q", data)
	}

	if err := scope.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if FileExists(path) {
		t.Error("temp file should be removed on Close")
	}
	if err := scope.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}
}
