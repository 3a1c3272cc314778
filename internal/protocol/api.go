// Package protocol defines the API request/response types.
package protocol

import "github.com/fruitsalade/fruitbasket/internal/models"

// ListResponse is returned by GET /api/files
type ListResponse struct {
	Files []models.FileEntry `json:"files"`
}

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// DeleteRequest is the body for DELETE /api/files.
type DeleteRequest struct {
	Filename   string `json:"filename"`
	FolderPath string `json:"folder_path,omitempty"`
	FolderType string `json:"folder_type,omitempty"`
}

// UpdateRequest is the body for PATCH /api/files.
type UpdateRequest struct {
	Filename   string   `json:"filename"`
	FolderPath string   `json:"folder_path,omitempty"`
	FolderType string   `json:"folder_type,omitempty"`
	NewData    *NewData `json:"new_data"`
}

// NewData carries the requested changes. Empty fields are left untouched.
type NewData struct {
	Filename string `json:"filename,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string   `json:"status"`
	FolderTypes []string `json:"folder_types,omitempty"`
}
