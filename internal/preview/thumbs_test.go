package preview

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

func encodePNG(t *testing.T, w, h int) *bytes.Buffer {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return &buf
}

func TestGenerateFitsBox(t *testing.T) {
	thumb, err := Generate(encodePNG(t, 800, 200), 400)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if thumb.Width != 400 || thumb.Height != 100 {
		t.Errorf("expected 400x100, got %dx%d", thumb.Width, thumb.Height)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(thumb.Data))
	if err != nil {
		t.Fatalf("thumbnail is not a JPEG: %v", err)
	}
	if cfg.Width != 400 || cfg.Height != 100 {
		t.Errorf("encoded size %dx%d", cfg.Width, cfg.Height)
	}
}

func TestGenerateDoesNotUpscale(t *testing.T) {
	thumb, err := Generate(encodePNG(t, 40, 30), 400)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if thumb.Width != 40 || thumb.Height != 30 {
		t.Errorf("expected 40x30, got %dx%d", thumb.Width, thumb.Height)
	}
}

func TestGenerateRejectsNonImage(t *testing.T) {
	if _, err := Generate(strings.NewReader(`{"notes":"x"}`), 400); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestClampSize(t *testing.T) {
	tests := []struct{ size, fallback, want int }{
		{0, 400, 400},
		{-5, 0, DefaultMaxSize},
		{128, 400, 128},
		{10000, 400, MaxAllowedSize},
	}
	for _, tt := range tests {
		if got := ClampSize(tt.size, tt.fallback); got != tt.want {
			t.Errorf("ClampSize(%d, %d) = %d, want %d", tt.size, tt.fallback, got, tt.want)
		}
	}
}
