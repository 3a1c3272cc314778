// Package preview renders scaled-down JPEG previews of images.
package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	// Decoders for the default image whitelist.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

const (
	DefaultMaxSize = 400
	MaxAllowedSize = 2048
	Quality        = 80
)

// Thumbnail is an encoded preview image.
type Thumbnail struct {
	Data   []byte
	Width  int
	Height int
}

// ClampSize returns size limited to [1, MaxAllowedSize], or fallback when size <= 0.
func ClampSize(size, fallback int) int {
	if size <= 0 {
		size = fallback
	}
	if size <= 0 {
		size = DefaultMaxSize
	}
	if size > MaxAllowedSize {
		size = MaxAllowedSize
	}
	return size
}

// Generate decodes an image and returns a JPEG that fits within
// maxSize x maxSize, preserving aspect ratio. Images already smaller than
// the box are re-encoded without upscaling.
func Generate(r io.Reader, maxSize int) (*Thumbnail, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	thumb := imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)
	bounds := thumb.Bounds()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	return &Thumbnail{
		Data:   buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}
