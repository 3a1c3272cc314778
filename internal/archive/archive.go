// Package archive builds zip downloads of a directory subtree.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"go.uber.org/zap"

	"github.com/fruitsalade/fruitbasket/internal/files"
	"github.com/fruitsalade/fruitbasket/internal/fserr"
	"github.com/fruitsalade/fruitbasket/internal/logging"
	"github.com/fruitsalade/fruitbasket/internal/metrics"
	"github.com/fruitsalade/fruitbasket/internal/safepath"
)

// DefaultName is the download name used when no folder path is given.
const DefaultName = "download"

// DefaultLevel is the deflate level used when none is configured.
const DefaultLevel = 5

// entryTime is stamped on every entry so identical trees give identical archives.
var entryTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Archive is a finished zip held in memory.
type Archive struct {
	Name    string   // download name without the .zip suffix
	Data    []byte
	Entries []string // in-archive names, in write order
}

// Builder walks folder type roots and packs whitelisted files.
type Builder struct {
	roots     files.RootResolver
	whitelist files.Set
	level     int
}

// NewBuilder creates a builder. level is a deflate level from 0 to 9.
func NewBuilder(roots files.RootResolver, whitelist files.Set, level int) (*Builder, error) {
	if level < flate.NoCompression || level > flate.BestCompression {
		return nil, fmt.Errorf("zip compression level %d out of range 0-9: %w", level, fserr.ErrValidation)
	}
	return &Builder{roots: roots, whitelist: whitelist, level: level}, nil
}

// Name derives the download name from the last segment of folderPath.
func Name(folderPath string) string {
	p := strings.Trim(strings.ReplaceAll(safepath.Decode(folderPath), `\`, "/"), "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	if p == "" || p == "." {
		return DefaultName
	}
	return p
}

// Build packs every visible, whitelisted regular file below folderPath.
// Entries are written in lexical walk order with pinned timestamps.
func (b *Builder) Build(folderType, folderPath string) (*Archive, error) {
	start := time.Now()

	decoded := safepath.Decode(folderPath)
	if safepath.HasTraversal(decoded) {
		logging.Warn("zip traversal rejected",
			zap.String("folder_type", folderType),
			zap.String("folder_path", folderPath))
		return nil, fmt.Errorf("folder_path %q: %w", folderPath, fserr.ErrPathTraversal)
	}

	root, err := b.roots.Resolve(folderType)
	if err != nil {
		return nil, err
	}
	target, err := safepath.Resolve(root, folderPath, "")
	if err != nil {
		return nil, err
	}

	logging.Info("building zip",
		zap.String("folder_type", folderType),
		zap.String("folder_path", decoded),
		zap.String("target", target))

	info, err := os.Stat(target)
	if err != nil {
		if safepath.Missing(err) {
			return nil, fmt.Errorf("zip %s: %w", decoded, fserr.ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", target, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("zip %s: %w", decoded, fserr.ErrNotADirectory)
	}

	// Walk the resolved directory so a symlinked folder is entered once.
	walkRoot, err := filepath.EvalSymlinks(target)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target, err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	level := b.level
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	var entries []string
	err = filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		hidden := strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if hidden && p != walkRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || !d.Type().IsRegular() || !b.whitelist.Match(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(walkRoot, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if err := addFile(zw, p, name); err != nil {
			return err
		}
		entries = append(entries, name)
		return nil
	})
	if err != nil {
		zw.Close()
		return nil, fmt.Errorf("walk %s: %w", target, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish zip: %w", err)
	}

	elapsed := time.Since(start)
	metrics.RecordZipBuild(elapsed, int64(buf.Len()), len(entries))
	logging.Debug("zip built",
		zap.String("target", target),
		zap.Int("entries", len(entries)),
		zap.Int("bytes", buf.Len()),
		zap.Duration("duration", elapsed))

	return &Archive{
		Name:    Name(folderPath),
		Data:    buf.Bytes(),
		Entries: entries,
	}, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: entryTime,
	}
	hdr.SetMode(0644)

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("compress %s: %w", name, err)
	}
	return nil
}
