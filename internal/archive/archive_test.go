package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fruitsalade/fruitbasket/internal/files"
	"github.com/fruitsalade/fruitbasket/internal/fserr"
	"github.com/fruitsalade/fruitbasket/internal/logging"
	"github.com/fruitsalade/fruitbasket/internal/roots"
)

func newTestBuilder(t *testing.T) (*Builder, string) {
	t.Helper()
	logging.InitNop()

	r, err := roots.New(roots.Config{Folders: map[string]string{"outputs": t.TempDir()}})
	if err != nil {
		t.Fatalf("roots.New: %v", err)
	}
	root, _ := r.Resolve("outputs")

	b, err := NewBuilder(r, files.DefaultExtensions().Archive, DefaultLevel)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	return b, root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		if f.Method != zip.Deflate {
			t.Errorf("%s: expected deflate, got method %d", f.Name, f.Method)
		}
		out[f.Name] = string(body)
	}
	return out
}

func TestBuildFiltersEntries(t *testing.T) {
	b, root := newTestBuilder(t)
	dir := filepath.Join(root, "run")
	writeFile(t, filepath.Join(dir, "a.png"), "A")
	writeFile(t, filepath.Join(dir, ".hidden", "b.png"), "B")
	writeFile(t, filepath.Join(dir, ".dotfile.png"), "dot")
	writeFile(t, filepath.Join(dir, "c.txt"), "txt")

	a, err := b.Build("outputs", "run")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := readZip(t, a.Data)
	if len(got) != 1 || got["a.png"] != "A" {
		t.Fatalf("expected only a.png, got %v", got)
	}
	if a.Name != "run" {
		t.Errorf("expected name run, got %s", a.Name)
	}
}

func TestBuildNestedPaths(t *testing.T) {
	b, root := newTestBuilder(t)
	dir := filepath.Join(root, "job")
	writeFile(t, filepath.Join(dir, "b.json"), "{}")
	writeFile(t, filepath.Join(dir, "sub", "d.JPG"), "D")
	writeFile(t, filepath.Join(dir, "sub", "deeper", "e.mp4"), "E")
	writeFile(t, filepath.Join(dir, "sub", "d.info"), "{}")

	a, err := b.Build("outputs", "job")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []string{"b.json", "sub/d.JPG", "sub/deeper/e.mp4"}
	if len(a.Entries) != len(want) {
		t.Fatalf("expected %v, got %v", want, a.Entries)
	}
	for i := range want {
		if a.Entries[i] != want[i] {
			t.Errorf("entry %d = %s, want %s", i, a.Entries[i], want[i])
		}
	}
	if got := readZip(t, a.Data); got["sub/deeper/e.mp4"] != "E" {
		t.Errorf("nested content mismatch: %v", got)
	}
}

func TestBuildDeterministic(t *testing.T) {
	b, root := newTestBuilder(t)
	writeFile(t, filepath.Join(root, "x", "a.png"), "first")
	writeFile(t, filepath.Join(root, "x", "z", "b.png"), "second")

	a1, err := b.Build("outputs", "x")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// Touch the files so only their mtime changes.
	later := time.Now().Add(48 * time.Hour)
	os.Chtimes(filepath.Join(root, "x", "a.png"), later, later)

	a2, err := b.Build("outputs", "x")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !bytes.Equal(a1.Data, a2.Data) {
		t.Error("expected byte-identical archives")
	}
}

func TestBuildRootAndEmpty(t *testing.T) {
	b, root := newTestBuilder(t)
	writeFile(t, filepath.Join(root, "top.png"), "T")
	os.MkdirAll(filepath.Join(root, "empty"), 0755)

	a, err := b.Build("outputs", "")
	if err != nil {
		t.Fatalf("Build root: %v", err)
	}
	if a.Name != DefaultName {
		t.Errorf("expected %s, got %s", DefaultName, a.Name)
	}
	if len(a.Entries) != 1 || a.Entries[0] != "top.png" {
		t.Errorf("unexpected entries %v", a.Entries)
	}

	a, err = b.Build("outputs", "empty")
	if err != nil {
		t.Fatalf("Build empty: %v", err)
	}
	if len(readZip(t, a.Data)) != 0 {
		t.Error("expected empty archive")
	}
}

func TestBuildSkipsSymlinks(t *testing.T) {
	b, root := newTestBuilder(t)
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "secret.png"), "S")
	writeFile(t, filepath.Join(root, "d", "a.png"), "A")
	if err := os.Symlink(filepath.Join(outside, "secret.png"), filepath.Join(root, "d", "link.png")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	a, err := b.Build("outputs", "d")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(a.Entries) != 1 || a.Entries[0] != "a.png" {
		t.Errorf("expected only a.png, got %v", a.Entries)
	}
}

func TestBuildErrors(t *testing.T) {
	b, root := newTestBuilder(t)
	writeFile(t, filepath.Join(root, "file.png"), "F")

	tests := []struct {
		name, folderType, folderPath string
		want                         error
	}{
		{"parent", "outputs", "..", fserr.ErrPathTraversal},
		{"nested parent", "outputs", "a/../../etc", fserr.ErrPathTraversal},
		{"encoded parent", "outputs", "%2e%2e/etc", fserr.ErrPathTraversal},
		{"backslash parent", "outputs", `a\..\..`, fserr.ErrPathTraversal},
		{"missing", "outputs", "nope", fserr.ErrNotFound},
		{"file", "outputs", "file.png", fserr.ErrNotADirectory},
		{"unknown type", "nope", "", fserr.ErrUnknownFolderType},
	}
	for _, tt := range tests {
		_, err := b.Build(tt.folderType, tt.folderPath)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}

func TestNewBuilderLevel(t *testing.T) {
	if _, err := NewBuilder(nil, files.NewSet(".png"), 10); !errors.Is(err, fserr.ErrValidation) {
		t.Errorf("expected ErrValidation for level 10, got %v", err)
	}
	if _, err := NewBuilder(nil, files.NewSet(".png"), 0); err != nil {
		t.Errorf("level 0 should be accepted: %v", err)
	}
}

func TestName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", "download"},
		{"/", "download"},
		{"batch", "batch"},
		{"2024/run-7", "run-7"},
		{"2024/run-7/", "run-7"},
		{`a\b`, "b"},
		{"my%20run", "my run"},
	}
	for _, tt := range tests {
		if got := Name(tt.in); got != tt.want {
			t.Errorf("Name(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
