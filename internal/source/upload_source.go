package source

import (
	"context"
	"strings"

	apperrors "go-quiz-helper/internal/errors"
	"go-quiz-helper/pkg/models"
)

type uploadSource struct {
	limits Limits
}

// NewUploadSource reads the file the user selected or shot with the device
// camera and posted with the capture request
func NewUploadSource(limits Limits) ImageSource {
	return &uploadSource{limits: limits}
}

func (s *uploadSource) Name() string { return "upload" }

func (s *uploadSource) Acquire(_ context.Context, req Request) (*models.Image, error) {
	if req.File == nil {
		return nil, apperrors.NewCaptureError("no file was uploaded", nil)
	}
	if !acceptsImage(req.ContentType) {
		return nil, apperrors.NewCaptureError("uploaded file is not an image: "+req.ContentType, nil)
	}

	data, err := readLimited(req.File, s.limits.MaxBytes)
	if err != nil {
		return nil, err
	}
	return decodeImage(data, req.FileName, s.limits.MaxPixels)
}

// acceptsImage mirrors an accept="image/*" file input. Clients that do not
// label the part are let through and judged by content.
func acceptsImage(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return ct == "" || ct == "application/octet-stream" || strings.HasPrefix(ct, "image/")
}
