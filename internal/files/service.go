// Package files implements delete, rename/update, view and listing on top of
// the folder type roots. Every path is resolved through safepath, and
// sidecars follow their content file on rename and delete.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitbasket/internal/fserr"
	"github.com/fruitsalade/fruitbasket/internal/logging"
	"github.com/fruitsalade/fruitbasket/internal/models"
	"github.com/fruitsalade/fruitbasket/internal/safepath"
	"github.com/fruitsalade/fruitbasket/internal/sidecar"
)

// RootResolver maps a folder type onto its root directory.
type RootResolver interface {
	Resolve(folderType string) (string, error)
}

// Service performs file operations under the configured roots.
type Service struct {
	roots RootResolver
	exts  Extensions
}

// NewService creates a file service.
func NewService(roots RootResolver, exts Extensions) *Service {
	return &Service{roots: roots, exts: exts}
}

// Extensions returns the classification tables the service was built with.
func (s *Service) Extensions() Extensions {
	return s.exts
}

// Update describes the changes requested for a file. Empty fields are ignored.
type Update struct {
	Filename string
	Notes    string
}

// ViewResult is a file read fully into memory for the view endpoint.
type ViewResult struct {
	Data        []byte
	ContentType string
	Filename    string
}

func (s *Service) resolve(folderType, folderPath, filename string) (root, target string, err error) {
	root, err = s.roots.Resolve(folderType)
	if err != nil {
		return "", "", err
	}
	target, err = safepath.Resolve(root, folderPath, filename)
	if err != nil {
		return "", "", err
	}
	return root, target, nil
}

func statErr(op, path string, err error) error {
	if safepath.Missing(err) {
		return fmt.Errorf("%s %s: %w", op, path, fserr.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, path, err)
}

// relPath returns target relative to root with forward slashes.
func relPath(root, target string) string {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return ""
	}
	return filepath.ToSlash(rel)
}

// List returns the visible entries of a directory. Hidden entries and
// sidecar files are omitted; directories sort first, then names.
func (s *Service) List(folderType, folderPath string) ([]models.FileEntry, error) {
	root, dir, err := s.resolve(folderType, folderPath, "")
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, statErr("list", folderPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("list %s: %w", folderPath, fserr.ErrNotADirectory)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, statErr("list", folderPath, err)
	}

	out := make([]models.FileEntry, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !entry.IsDir() && sidecar.IsSidecar(name) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue // removed while listing
		}

		full := filepath.Join(dir, name)
		fe := models.FileEntry{
			Name:    name,
			Path:    relPath(root, full),
			ModTime: info.ModTime(),
			IsDir:   info.IsDir(),
		}
		if info.IsDir() {
			fe.Kind = models.KindDir
		} else {
			fe.Kind = s.exts.Kind(name)
			fe.Size = info.Size()
		}

		meta, err := sidecar.Read(sidecar.Path(full))
		if err != nil {
			logging.Warn("unreadable sidecar", zap.String("path", full), zap.Error(err))
		} else if meta != nil {
			fe.Notes = meta.Notes
		}
		out = append(out, fe)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Delete removes a file, or a directory and everything below it, then the
// sidecar of the removed entry if one exists.
func (s *Service) Delete(folderType, folderPath, filename string) error {
	if filename == "" {
		return fmt.Errorf("filename is required: %w", fserr.ErrValidation)
	}
	root, target, err := s.resolve(folderType, folderPath, filename)
	if err != nil {
		return err
	}
	if target == root {
		return fmt.Errorf("cannot delete folder type root: %w", fserr.ErrValidation)
	}

	info, err := os.Lstat(target)
	if err != nil {
		return statErr("delete", filename, err)
	}

	if info.IsDir() {
		err = os.RemoveAll(target)
	} else {
		err = os.Remove(target)
	}
	if err != nil {
		return statErr("delete", filename, err)
	}

	if side := sidecar.Path(target); side != target {
		if err := sidecar.Remove(side); err != nil {
			return err
		}
	}

	logging.Debug("deleted", zap.String("folder_type", folderType), zap.String("path", target), zap.Bool("dir", info.IsDir()))
	return nil
}

// renameFile is os.Rename; tests swap it to force a failed sidecar move.
var renameFile = os.Rename

// rename moves a file and its sidecar (if any) to newName in the same
// directory. Both targets are checked before anything moves. Content moves
// first; the sidecar moves only after that succeeded, and a failed sidecar
// move puts the content back.
func (s *Service) rename(root, oldPath, newName string) (string, error) {
	newPath := filepath.Join(filepath.Dir(oldPath), newName)
	if newPath == oldPath {
		return oldPath, nil
	}
	if !safepath.Within(root, newPath) {
		return "", fmt.Errorf("%s escapes root: %w", newName, fserr.ErrPathTraversal)
	}

	oldInfo, err := os.Lstat(oldPath)
	if err != nil {
		return "", statErr("rename", filepath.Base(oldPath), err)
	}
	if err := checkFree(oldInfo, newPath); err != nil {
		return "", err
	}

	oldSide, newSide := sidecar.Path(oldPath), sidecar.Path(newPath)
	moveSide := false
	if oldSide != newSide && oldSide != oldPath {
		if newSide == newPath {
			return "", fmt.Errorf("%s would replace its own sidecar: %w", newName, fserr.ErrValidation)
		}
		sideInfo, err := os.Lstat(oldSide)
		switch {
		case err == nil:
			if err := checkFree(sideInfo, newSide); err != nil {
				return "", err
			}
			moveSide = true
		case !safepath.Missing(err):
			return "", fmt.Errorf("stat sidecar %s: %w", oldSide, err)
		}
	}

	if err := renameFile(oldPath, newPath); err != nil {
		return "", statErr("rename", filepath.Base(oldPath), err)
	}
	if !moveSide {
		return newPath, nil
	}

	if err := renameFile(oldSide, newSide); err != nil {
		if rbErr := renameFile(newPath, oldPath); rbErr != nil {
			return "", fmt.Errorf("move sidecar: %v (rollback failed: %v)", err, rbErr)
		}
		return "", fmt.Errorf("move sidecar: %v", err)
	}
	return newPath, nil
}

// checkFree returns ErrConflict if target exists and is not src itself.
// Case-only renames on case-insensitive filesystems report the same file.
func checkFree(src os.FileInfo, target string) error {
	info, err := os.Lstat(target)
	if err == nil {
		if os.SameFile(src, info) {
			return nil
		}
		return fmt.Errorf("rename to %s: %w", filepath.Base(target), fserr.ErrConflict)
	}
	if safepath.Missing(err) {
		return nil
	}
	return fmt.Errorf("stat %s: %w", filepath.Base(target), err)
}

// Update renames a file and/or replaces its notes. It returns the final
// path relative to the folder type root.
func (s *Service) Update(folderType, folderPath, filename string, upd *Update) (string, error) {
	if upd == nil || (upd.Filename == "" && upd.Notes == "") {
		return "", fmt.Errorf("new_data is required: %w", fserr.ErrValidation)
	}
	if filename == "" {
		return "", fmt.Errorf("filename is required: %w", fserr.ErrValidation)
	}

	root, oldPath, err := s.resolve(folderType, folderPath, filename)
	if err != nil {
		return "", err
	}
	if oldPath == root {
		return "", fmt.Errorf("cannot modify folder type root: %w", fserr.ErrValidation)
	}

	var newName string
	if upd.Filename != "" {
		newName, err = safepath.Check("new_data.filename", upd.Filename)
		if err != nil {
			return "", err
		}
		if newName == "." || strings.ContainsAny(newName, `/\`) {
			return "", fmt.Errorf("new filename %q must be a single name: %w", upd.Filename, fserr.ErrValidation)
		}
		if newName == filepath.Base(oldPath) {
			newName = ""
		} else if sidecar.IsSidecar(newName) {
			return "", fmt.Errorf("new filename %q uses the sidecar extension: %w", upd.Filename, fserr.ErrValidation)
		}
	}

	finalName := filepath.Base(oldPath)
	if newName != "" {
		finalName = newName
	}
	if upd.Notes != "" && sidecar.IsSidecar(finalName) {
		return "", fmt.Errorf("cannot attach notes to sidecar %s: %w", finalName, fserr.ErrValidation)
	}

	if _, err := os.Lstat(oldPath); err != nil {
		return "", statErr("update", filename, err)
	}

	final := oldPath
	if newName != "" {
		final, err = s.rename(root, oldPath, newName)
		if err != nil {
			return "", err
		}
		logging.Debug("renamed", zap.String("from", oldPath), zap.String("to", final))
	}

	if upd.Notes != "" {
		if err := sidecar.Write(sidecar.Path(final), sidecar.Metadata{Notes: upd.Notes}); err != nil {
			return "", err
		}
	}
	return relPath(root, final), nil
}

// View reads a whole file and classifies its content type by extension.
func (s *Service) View(folderType, folderPath, filename string) (*ViewResult, error) {
	if filename == "" {
		return nil, fmt.Errorf("filename is required: %w", fserr.ErrNotFound)
	}
	_, target, err := s.resolve(folderType, folderPath, filename)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, statErr("view", filename, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("view %s: %w", filename, fserr.ErrIsADirectory)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, statErr("view", filename, err)
	}

	name := filepath.Base(target)
	return &ViewResult{
		Data:        data,
		ContentType: s.exts.ContentType(name),
		Filename:    name,
	}, nil
}

// OpenImage resolves an image file for thumbnailing and returns it open for reading.
func (s *Service) OpenImage(folderType, folderPath, filename string) (*os.File, error) {
	if filename == "" {
		return nil, fmt.Errorf("filename is required: %w", fserr.ErrNotFound)
	}
	_, target, err := s.resolve(folderType, folderPath, filename)
	if err != nil {
		return nil, err
	}
	if !s.exts.Image.Match(target) {
		return nil, fmt.Errorf("%s is not an image: %w", filepath.Base(target), fserr.ErrValidation)
	}

	f, err := os.Open(target)
	if err != nil {
		return nil, statErr("open", filename, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", filename, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", filename, fserr.ErrIsADirectory)
	}
	return f, nil
}
