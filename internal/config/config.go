// Package config loads configuration from environment variables and an
// optional YAML folders file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fruitsalade/fruitbasket/internal/files"
	"github.com/fruitsalade/fruitbasket/internal/logging"
)

const defaultFolderRoots = "outputs=/data/outputs,inputs=/data/inputs"

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// TLS (optional, if both set the server uses HTTPS)
	TLSCertFile string
	TLSKeyFile  string

	// Folder types
	FoldersFile       string
	Folders           map[string]string // folder type -> root directory
	CreateRoots       bool
	DefaultFolderType string

	// Classification and zip whitelist
	Extensions files.Extensions

	// Downloads and previews
	ZipCompressionLevel  int
	ZipRequestsPerMinute int // 0 = unlimited
	ThumbMaxSize         int
}

// fileConfig is the layout of FOLDERS_FILE.
type fileConfig struct {
	Folders    map[string]string `yaml:"folders"`
	Extensions struct {
		Image   []string `yaml:"image"`
		Video   []string `yaml:"video"`
		Archive []string `yaml:"archive"`
	} `yaml:"extensions"`
}

// Load reads configuration from environment variables with defaults.
// Values from FOLDERS_FILE are applied first; environment variables win.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:           envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:          envOr("METRICS_ADDR", ":9090"),
		LogLevel:             envOr("LOG_LEVEL", "info"),
		LogFormat:            envOr("LOG_FORMAT", "json"),
		TLSCertFile:          envOr("TLS_CERT_FILE", ""),
		TLSKeyFile:           envOr("TLS_KEY_FILE", ""),
		FoldersFile:          envOr("FOLDERS_FILE", ""),
		CreateRoots:          envBool("CREATE_ROOTS", true),
		DefaultFolderType:    envOr("DEFAULT_FOLDER_TYPE", "outputs"),
		ZipCompressionLevel:  envInt("ZIP_COMPRESSION_LEVEL", 5),
		ZipRequestsPerMinute: envInt("ZIP_REQUESTS_PER_MINUTE", 0),
		ThumbMaxSize:         envInt("THUMB_MAX_SIZE", 400),
		Folders:              make(map[string]string),
	}

	defaults := files.DefaultExtensions()
	image, video := defaults.Image, defaults.Video
	var archive files.Set

	if cfg.FoldersFile != "" {
		fc, err := readFile(cfg.FoldersFile)
		if err != nil {
			return nil, err
		}
		for name, path := range fc.Folders {
			cfg.Folders[name] = path
		}
		if len(fc.Extensions.Image) > 0 {
			image = files.NewSet(fc.Extensions.Image...)
		}
		if len(fc.Extensions.Video) > 0 {
			video = files.NewSet(fc.Extensions.Video...)
		}
		if len(fc.Extensions.Archive) > 0 {
			archive = files.NewSet(fc.Extensions.Archive...)
		}
	}

	if v := os.Getenv("FOLDER_ROOTS"); v != "" {
		roots, err := ParseFolderRoots(v)
		if err != nil {
			return nil, err
		}
		for name, path := range roots {
			cfg.Folders[name] = path
		}
	}
	if len(cfg.Folders) == 0 {
		cfg.Folders, _ = ParseFolderRoots(defaultFolderRoots)
	}

	if set := envList("IMAGE_EXTENSIONS"); set != nil {
		image = set
	}
	if set := envList("VIDEO_EXTENSIONS"); set != nil {
		video = set
	}
	if set := envList("ARCHIVE_EXTENSIONS"); set != nil {
		archive = set
	}
	if archive == nil {
		archive = image.Union(video, files.NewSet(".json"))
	}
	cfg.Extensions = files.Extensions{Image: image, Video: video, Archive: archive}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if _, ok := c.Folders[c.DefaultFolderType]; !ok {
		return fmt.Errorf("DEFAULT_FOLDER_TYPE %q is not a configured folder type", c.DefaultFolderType)
	}
	if c.ZipCompressionLevel < 0 || c.ZipCompressionLevel > 9 {
		return fmt.Errorf("ZIP_COMPRESSION_LEVEL must be between 0 and 9, got %d", c.ZipCompressionLevel)
	}
	if c.ZipRequestsPerMinute < 0 {
		return fmt.Errorf("ZIP_REQUESTS_PER_MINUTE must not be negative")
	}
	if c.ThumbMaxSize <= 0 {
		return fmt.Errorf("THUMB_MAX_SIZE must be positive")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	return nil
}

// TLSEnabled reports whether both TLS files are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// ParseFolderRoots parses "name=path,name=path".
func ParseFolderRoots(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, path, ok := strings.Cut(pair, "=")
		name, path = strings.TrimSpace(name), strings.TrimSpace(path)
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("FOLDER_ROOTS entry %q: want name=path", pair)
		}
		out[name] = path
	}
	return out, nil
}

func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read folders file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse folders file %s: %w", path, err)
	}
	return &fc, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

// envList returns the comma separated extensions in key, or nil when unset.
func envList(key string) files.Set {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	return files.NewSet(strings.Split(v, ",")...)
}
