// Package source acquires the image a capture session works on. Upload, camera
// snapshot and Azure blob sources are interchangeable behind ImageSource and
// chosen once at configuration time.
package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	apperrors "go-quiz-helper/internal/errors"
	"go-quiz-helper/pkg/models"
)

// Request carries whatever the trigger supplied. Push sources (upload) read
// File; pull sources (camera, azure) ignore it.
type Request struct {
	File        io.Reader
	FileName    string
	ContentType string
	BlobName    string
}

// ImageSource obtains one still image or fails with a capture error
type ImageSource interface {
	Name() string
	Acquire(ctx context.Context, req Request) (*models.Image, error)
}

// Limits bounds what a source accepts. MaxBytes caps the encoded size and
// MaxPixels the decoded width times height, which is what decoding allocates.
type Limits struct {
	MaxBytes  int64
	MaxPixels int64
}

// readLimited reads at most maxBytes, failing if the image is larger
func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, apperrors.NewCaptureError("failed to read image", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, apperrors.NewCaptureError(fmt.Sprintf("image exceeds %d bytes", maxBytes), nil)
	}
	return data, nil
}

// decodeImage checks that data is an image in a supported encoding and
// records its format and dimensions. Only the header is parsed, so an image
// whose header claims more than maxPixels is refused before anything
// allocates its pixels.
func decodeImage(data []byte, name string, maxPixels int64) (*models.Image, error) {
	if len(data) == 0 {
		return nil, apperrors.NewCaptureError("image is empty", nil)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewCaptureError("unsupported or corrupt image", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, apperrors.NewCaptureError("image has no pixels", nil)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return nil, apperrors.NewCaptureError(
			fmt.Sprintf("image is %dx%d, more than %d pixels", cfg.Width, cfg.Height, maxPixels), nil)
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "image/" + format
	}

	return &models.Image{
		Data:        data,
		ContentType: contentType,
		Name:        name,
		Format:      format,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}
