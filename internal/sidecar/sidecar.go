// Package sidecar reads and writes the small JSON metadata file stored next
// to a content file. The sidecar shares the content file's base name with
// the extension replaced by Ext.
package sidecar

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Ext is the sidecar file extension.
const Ext = ".info"

// Metadata is the sidecar payload.
type Metadata struct {
	Notes string `json:"notes"`
}

// Path returns the sidecar path for contentPath: same directory, content
// extension stripped, Ext appended. A leading dot does not start an
// extension, so ".env" maps to ".env.info".
func Path(contentPath string) string {
	dir, name := filepath.Split(contentPath)
	return dir + stem(name) + Ext
}

// IsSidecar reports whether name looks like a sidecar file.
func IsSidecar(name string) bool {
	return strings.EqualFold(filepath.Ext(name), Ext) && stem(name) != name
}

func stem(name string) string {
	ext := filepath.Ext(name)
	if ext == name {
		return name
	}
	return strings.TrimSuffix(name, ext)
}

// Read loads the sidecar at path. A missing sidecar returns nil, nil.
func Read(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sidecar %s: %w", path, err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse sidecar %s: %w", path, err)
	}
	return &meta, nil
}

// Write replaces the sidecar at path with meta. The parent directory must
// exist. The file is written to a temp file and renamed into place, so a
// reader never sees a partial document.
func Write(path string, meta Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode sidecar %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".fruitbasket-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", path, err)
	}
	return nil
}

// Remove deletes the sidecar at path. A missing sidecar is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove sidecar %s: %w", path, err)
	}
	return nil
}
