package config

import (
	"os"
	"path/filepath"
	"testing"
)

var configEnv = []string{
	"LISTEN_ADDR", "METRICS_ADDR", "LOG_LEVEL", "LOG_FORMAT",
	"TLS_CERT_FILE", "TLS_KEY_FILE", "FOLDERS_FILE", "FOLDER_ROOTS",
	"CREATE_ROOTS", "DEFAULT_FOLDER_TYPE",
	"IMAGE_EXTENSIONS", "VIDEO_EXTENSIONS", "ARCHIVE_EXTENSIONS",
	"ZIP_COMPRESSION_LEVEL", "ZIP_REQUESTS_PER_MINUTE", "THUMB_MAX_SIZE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.MetricsAddr != ":9090" {
		t.Errorf("unexpected addrs %s %s", cfg.ListenAddr, cfg.MetricsAddr)
	}
	if cfg.Folders["outputs"] != "/data/outputs" || cfg.Folders["inputs"] != "/data/inputs" {
		t.Errorf("unexpected folders %v", cfg.Folders)
	}
	if cfg.DefaultFolderType != "outputs" || !cfg.CreateRoots {
		t.Errorf("unexpected folder defaults: %s %v", cfg.DefaultFolderType, cfg.CreateRoots)
	}
	if cfg.ZipCompressionLevel != 5 || cfg.ZipRequestsPerMinute != 0 || cfg.ThumbMaxSize != 400 {
		t.Errorf("unexpected numeric defaults: %+v", cfg)
	}
	if !cfg.Extensions.Image.Has(".png") || !cfg.Extensions.Video.Has(".mp4") {
		t.Error("expected default image and video extensions")
	}
	if !cfg.Extensions.Archive.Has(".json") || cfg.Extensions.Archive.Has(".txt") {
		t.Errorf("unexpected archive whitelist %v", cfg.Extensions.Archive.Sorted())
	}
	if cfg.TLSEnabled() {
		t.Error("TLS should be off by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("FOLDER_ROOTS", "renders=/srv/renders, uploads = /srv/uploads")
	t.Setenv("DEFAULT_FOLDER_TYPE", "renders")
	t.Setenv("IMAGE_EXTENSIONS", "PNG,.tif")
	t.Setenv("ARCHIVE_EXTENSIONS", ".png")
	t.Setenv("ZIP_REQUESTS_PER_MINUTE", "6")
	t.Setenv("CREATE_ROOTS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Folders) != 2 || cfg.Folders["uploads"] != "/srv/uploads" {
		t.Errorf("unexpected folders %v", cfg.Folders)
	}
	if !cfg.Extensions.Image.Has(".tif") || cfg.Extensions.Image.Has(".jpg") {
		t.Errorf("unexpected images %v", cfg.Extensions.Image.Sorted())
	}
	if got := cfg.Extensions.Archive.Sorted(); len(got) != 1 || got[0] != ".png" {
		t.Errorf("unexpected archive whitelist %v", got)
	}
	if cfg.ZipRequestsPerMinute != 6 || cfg.CreateRoots {
		t.Errorf("unexpected values %+v", cfg)
	}
}

func TestLoadFoldersFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "folders.yaml")
	doc := `folders:
  outputs: /srv/out
  inputs: /srv/in
extensions:
  video: [mp4]
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FOLDERS_FILE", path)
	t.Setenv("FOLDER_ROOTS", "inputs=/override/in")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Folders["outputs"] != "/srv/out" {
		t.Errorf("file folder lost: %v", cfg.Folders)
	}
	if cfg.Folders["inputs"] != "/override/in" {
		t.Errorf("env should override file: %v", cfg.Folders)
	}
	if cfg.Extensions.Video.Has(".webm") || !cfg.Extensions.Video.Has(".mp4") {
		t.Errorf("unexpected videos %v", cfg.Extensions.Video.Sorted())
	}
	// Archive follows the effective image and video sets.
	if cfg.Extensions.Archive.Has(".webm") || !cfg.Extensions.Archive.Has(".png") {
		t.Errorf("unexpected archive whitelist %v", cfg.Extensions.Archive.Sorted())
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown default type", map[string]string{"DEFAULT_FOLDER_TYPE": "nope"}},
		{"bad roots", map[string]string{"FOLDER_ROOTS": "outputs"}},
		{"bad level", map[string]string{"ZIP_COMPRESSION_LEVEL": "12"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
		{"half tls", map[string]string{"TLS_CERT_FILE": "/cert.pem"}},
		{"missing file", map[string]string{"FOLDERS_FILE": "/does/not/exist.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseFolderRoots(t *testing.T) {
	got, err := ParseFolderRoots("a=/x,,b=/y=z")
	if err != nil {
		t.Fatalf("ParseFolderRoots: %v", err)
	}
	if got["a"] != "/x" || got["b"] != "/y=z" {
		t.Errorf("unexpected %v", got)
	}
	if _, err := ParseFolderRoots("=/x"); err == nil {
		t.Error("expected error for empty name")
	}
}
