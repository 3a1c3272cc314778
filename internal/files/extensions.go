package files

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/fruitsalade/fruitbasket/internal/models"
)

// DefaultContentType is returned for extensions that are neither images nor
// videos. The view endpoint mostly serves JSON metadata besides media.
const DefaultContentType = "application/json"

// Set is an immutable set of lower-case extensions with a leading dot.
type Set map[string]struct{}

// NewSet normalizes exts ("PNG", ".png" and " .Png " all become ".png").
func NewSet(exts ...string) Set {
	s := make(Set, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || ext == "." {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s[ext] = struct{}{}
	}
	return s
}

// Has reports whether ext (any case, with leading dot) is in the set.
func (s Set) Has(ext string) bool {
	_, ok := s[strings.ToLower(ext)]
	return ok
}

// Match reports whether the extension of name is in the set.
func (s Set) Match(name string) bool {
	return s.Has(filepath.Ext(name))
}

// Sorted returns the extensions in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for ext := range s {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Union returns a new set containing the members of s and others.
func (s Set) Union(others ...Set) Set {
	out := make(Set, len(s))
	for ext := range s {
		out[ext] = struct{}{}
	}
	for _, o := range others {
		for ext := range o {
			out[ext] = struct{}{}
		}
	}
	return out
}

// Extensions holds the classification tables used by the file services.
// Archive is the whitelist for zip downloads and is independent of the
// image and video sets.
type Extensions struct {
	Image   Set
	Video   Set
	Archive Set
}

// DefaultExtensions returns the built-in tables.
func DefaultExtensions() Extensions {
	image := NewSet(".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp")
	video := NewSet(".mp4", ".webm", ".mov", ".mkv", ".avi")
	return Extensions{
		Image:   image,
		Video:   video,
		Archive: image.Union(video, NewSet(".json")),
	}
}

var subtypeAliases = map[string]string{
	"jpg": "jpeg",
	"mov": "quicktime",
	"mkv": "x-matroska",
	"avi": "x-msvideo",
	"svg": "svg+xml",
}

// ContentType classifies name by extension: image/<ext> for images,
// video/<ext> for videos, DefaultContentType otherwise.
func (e Extensions) ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	sub := strings.TrimPrefix(ext, ".")
	if alias, ok := subtypeAliases[sub]; ok {
		sub = alias
	}

	switch {
	case e.Video.Has(ext):
		return "video/" + sub
	case e.Image.Has(ext):
		return "image/" + sub
	default:
		return DefaultContentType
	}
}

// Kind returns the listing kind for a non-directory entry.
func (e Extensions) Kind(name string) string {
	switch {
	case e.Video.Match(name):
		return models.KindVideo
	case e.Image.Match(name):
		return models.KindImage
	default:
		return models.KindFile
	}
}
