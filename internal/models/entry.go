// Package models contains the data types shared by the file services and the API.
package models

import "time"

// Entry kinds reported in listings.
const (
	KindDir   = "dir"
	KindImage = "image"
	KindVideo = "video"
	KindFile  = "file"
)

// FileEntry describes a file or directory under a folder type root.
type FileEntry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"` // relative to the folder type root, slash separated
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
	IsDir   bool      `json:"is_dir"`
	Kind    string    `json:"kind"`
	Notes   string    `json:"notes,omitempty"`
}
