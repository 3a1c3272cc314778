// Package safepath joins untrusted folder paths and filenames onto a root
// directory without letting the result escape that root.
package safepath

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fruitsalade/fruitbasket/internal/fserr"
)

// Decode percent-decodes s exactly once. Proxies in front of the server may
// encode a path twice; the transport strips one layer and Decode strips the
// second. A string with malformed escapes is returned unchanged.
func Decode(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// HasTraversal reports whether any component of s, split on either
// separator, is a parent reference.
func HasTraversal(s string) bool {
	for _, part := range strings.FieldsFunc(s, isSeparator) {
		if part == ".." {
			return true
		}
	}
	return false
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

// Check decodes value once and rejects it if it carries a traversal token
// or a NUL byte. field names the value in the returned error.
func Check(field, value string) (string, error) {
	decoded := Decode(value)
	if strings.ContainsRune(decoded, 0) {
		return "", fmt.Errorf("%s contains NUL byte: %w", field, fserr.ErrValidation)
	}
	if HasTraversal(decoded) {
		return "", fmt.Errorf("%s %q: %w", field, value, fserr.ErrPathTraversal)
	}
	return decoded, nil
}

// Resolve joins folderPath and filename onto root and returns the absolute
// result. Both inputs are decoded once and checked for traversal before any
// filesystem access. The joined path, and its symlink-resolved form, must stay
// inside root. root must already be absolute and canonical.
func Resolve(root, folderPath, filename string) (string, error) {
	dir, err := Check("folder_path", folderPath)
	if err != nil {
		return "", err
	}
	name, err := Check("filename", filename)
	if err != nil {
		return "", err
	}

	target := filepath.Join(root, filepath.FromSlash(dir), filepath.FromSlash(name))
	if !Within(root, target) {
		return "", fmt.Errorf("%s escapes root: %w", target, fserr.ErrPathTraversal)
	}

	canonical, err := canonicalize(target)
	if err != nil {
		return "", err
	}
	if !Within(root, canonical) {
		return "", fmt.Errorf("%s resolves outside root: %w", target, fserr.ErrPathTraversal)
	}
	return target, nil
}

// Within reports whether p is root or lies beneath it. Both must be clean absolute paths.
func Within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

// Missing reports whether err means the path does not exist, including the
// case where a parent component is a regular file.
func Missing(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// canonicalize resolves symlinks in the longest existing prefix of p and
// re-appends the components that do not exist yet.
func canonicalize(p string) (string, error) {
	cur := p
	rest := ""
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			if rest == "" {
				return resolved, nil
			}
			return filepath.Join(resolved, rest), nil
		}
		if !Missing(err) {
			return "", fmt.Errorf("canonicalize %s: %w", p, err)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}
