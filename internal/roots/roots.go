// Package roots maps folder type keywords ("outputs", "inputs", ...) onto
// absolute root directories configured at startup.
package roots

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fruitsalade/fruitbasket/internal/fserr"
)

// Config holds the root directories keyed by folder type.
type Config struct {
	Folders    map[string]string
	CreateDirs bool
}

// Resolver resolves folder types to root directories. It is immutable after New.
type Resolver struct {
	roots map[string]string
}

// New validates every configured root and returns a Resolver.
// Roots are made absolute and symlinks in them are resolved, so later
// containment checks compare canonical paths.
func New(cfg Config) (*Resolver, error) {
	if len(cfg.Folders) == 0 {
		return nil, fmt.Errorf("at least one folder root is required")
	}

	r := &Resolver{roots: make(map[string]string, len(cfg.Folders))}
	for name, dir := range cfg.Folders {
		if name == "" {
			return nil, fmt.Errorf("empty folder type name")
		}
		if dir == "" {
			return nil, fmt.Errorf("folder type %s: root path is required", name)
		}

		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("folder type %s: resolve %s: %w", name, dir, err)
		}

		info, err := os.Stat(abs)
		if err != nil {
			if os.IsNotExist(err) && cfg.CreateDirs {
				if mkErr := os.MkdirAll(abs, 0755); mkErr != nil {
					return nil, fmt.Errorf("folder type %s: create root %s: %w", name, abs, mkErr)
				}
			} else {
				return nil, fmt.Errorf("folder type %s: stat root %s: %w", name, abs, err)
			}
		} else if !info.IsDir() {
			return nil, fmt.Errorf("folder type %s: root %s is not a directory", name, abs)
		}

		canonical, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("folder type %s: canonicalize %s: %w", name, abs, err)
		}
		r.roots[name] = canonical
	}
	return r, nil
}

// Resolve returns the root directory for folderType. It never touches the filesystem.
func (r *Resolver) Resolve(folderType string) (string, error) {
	root, ok := r.roots[folderType]
	if !ok {
		return "", fmt.Errorf("folder type %q: %w", folderType, fserr.ErrUnknownFolderType)
	}
	return root, nil
}

// FolderTypes returns the configured folder type names in sorted order.
func (r *Resolver) FolderTypes() []string {
	names := make([]string, 0, len(r.roots))
	for name := range r.roots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
