// Package analyzer measures acquired images and produces advisory quality
// hints before recognition runs.
package analyzer

import (
	"image"

	"go-quiz-helper/pkg/models"
)

// Inspector reports capture quality problems for an acquired image
type Inspector interface {
	Inspect(img *models.Image) (Report, error)
}

// MetricsCalculator handles image metrics computation
type MetricsCalculator interface {
	CalculateSaturation(img image.Image) float64
	CalculateLaplacianVariance(gray *image.Gray) float64
	CalculateBrightness(gray *image.Gray) (mean, stddev float64)
}
