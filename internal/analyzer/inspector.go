package analyzer

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"go-quiz-helper/pkg/models"
	"go-quiz-helper/pkg/validation"
)

// maxInspectSide bounds the longer side of the working copy; measurements on
// phone photos do not need full resolution
const maxInspectSide = 1024

// maxDecodePixels is the largest image Inspect will fully decode
const maxDecodePixels = 40_000_000

// Report is the outcome of inspecting one capture
type Report struct {
	Metrics validation.CaptureMetrics
	Issues  []validation.QualityIssue
	Hints   []string
}

type inspector struct {
	metrics   MetricsCalculator
	validator *validation.QualityValidator
	maxPixels int64
}

// NewInspector creates an inspector with default thresholds
func NewInspector() Inspector {
	return NewInspectorWithValidator(validation.NewQualityValidator())
}

// NewInspectorWithValidator creates an inspector using custom thresholds
func NewInspectorWithValidator(v *validation.QualityValidator) Inspector {
	return &inspector{
		metrics:   NewMetricsCalculator(),
		validator: v,
		maxPixels: maxDecodePixels,
	}
}

func (in *inspector) Inspect(img *models.Image) (Report, error) {
	if img == nil || len(img.Data) == 0 {
		return Report{}, fmt.Errorf("no image to inspect")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return Report{}, fmt.Errorf("decode image header: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > in.maxPixels {
		return Report{}, fmt.Errorf("image is %dx%d, too large to inspect", cfg.Width, cfg.Height)
	}

	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return Report{}, fmt.Errorf("decode image: %w", err)
	}

	// Resolution hints use the original size, pixel statistics the working copy
	bounds := decoded.Bounds()
	working := downscale(decoded)

	wb := working.Bounds()
	gray := image.NewGray(image.Rect(0, 0, wb.Dx(), wb.Dy()))
	draw.Draw(gray, gray.Bounds(), working, wb.Min, draw.Src)

	brightness, contrast := in.metrics.CalculateBrightness(gray)
	m := validation.CaptureMetrics{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		LaplacianVar:  in.metrics.CalculateLaplacianVariance(gray),
		Brightness:    brightness,
		Contrast:      contrast,
		AvgSaturation: in.metrics.CalculateSaturation(working),
	}

	issues := in.validator.ValidateCapture(m)
	return Report{
		Metrics: m,
		Issues:  issues,
		Hints:   in.validator.ConvertIssuesToMessages(issues),
	}, nil
}

// downscale shrinks img so its longer side is at most maxInspectSide
func downscale(img image.Image) image.Image {
	b := img.Bounds()
	longer := max(b.Dx(), b.Dy())
	if longer <= maxInspectSide {
		return img
	}

	w := b.Dx() * maxInspectSide / longer
	h := b.Dy() * maxInspectSide / longer
	dst := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
