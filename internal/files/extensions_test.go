package files

import "testing"

func TestNewSetNormalizes(t *testing.T) {
	s := NewSet("PNG", ".jpg", " .Webp ", "", ".")
	for _, ext := range []string{".png", ".jpg", ".webp"} {
		if !s.Has(ext) {
			t.Errorf("expected %s in set", ext)
		}
	}
	if len(s) != 3 {
		t.Errorf("expected 3 members, got %v", s.Sorted())
	}
	if !s.Match("photo.PNG") || s.Match("photo") {
		t.Error("unexpected Match results")
	}
}

func TestContentType(t *testing.T) {
	exts := DefaultExtensions()
	tests := []struct{ name, want string }{
		{"a.png", "image/png"},
		{"a.jpg", "image/jpeg"},
		{"a.JPEG", "image/jpeg"},
		{"a.webm", "video/webm"},
		{"a.mov", "video/quicktime"},
		{"a.json", "application/json"},
		{"a.txt", "application/json"},
		{"noext", "application/json"},
	}
	for _, tt := range tests {
		if got := exts.ContentType(tt.name); got != tt.want {
			t.Errorf("ContentType(%s) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestArchiveWhitelistIndependent(t *testing.T) {
	exts := DefaultExtensions()
	if !exts.Archive.Has(".json") {
		t.Error("archive whitelist should include .json")
	}
	if exts.Image.Has(".json") || exts.Video.Has(".json") {
		t.Error(".json must not classify as media")
	}
	if exts.Archive.Has(".txt") || exts.Archive.Has(".info") {
		t.Error("unexpected archive members")
	}
}
