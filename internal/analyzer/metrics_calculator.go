package analyzer

import (
	"image"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// metricsCalculator implements MetricsCalculator using Gonum statistics
type metricsCalculator struct {
	slicePool sync.Pool
}

// NewMetricsCalculator creates a new metrics calculator using Gonum
func NewMetricsCalculator() MetricsCalculator {
	return &metricsCalculator{
		slicePool: sync.Pool{
			New: func() interface{} {
				return make([]float64, 0, 1024)
			},
		},
	}
}

// CalculateSaturation averages HSV saturation, processing horizontal strips in
// parallel
func (mc *metricsCalculator) CalculateSaturation(img image.Image) float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return 0
	}

	numWorkers := min(runtime.NumCPU(), height)
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	sums := make([]float64, numWorkers)
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		startY := bounds.Min.Y + i*rowsPerWorker
		endY := min(startY+rowsPerWorker, bounds.Max.Y)

		wg.Add(1)
		go func(i, startY, endY int) {
			defer wg.Done()
			var sat float64
			for y := startY; y < endY; y++ {
				for x := bounds.Min.X; x < bounds.Max.X; x++ {
					r, g, b, _ := img.At(x, y).RGBA()
					sat += saturation(float64(r), float64(g), float64(b))
				}
			}
			sums[i] = sat
		}(i, startY, endY)
	}
	wg.Wait()

	return floats.Sum(sums) / float64(width*height)
}

// saturation is the S component of HSV for one pixel
func saturation(r, g, b float64) float64 {
	maxC := math.Max(math.Max(r, g), b)
	if maxC == 0 {
		return 0
	}
	minC := math.Min(math.Min(r, g), b)
	return (maxC - minC) / maxC
}

// CalculateLaplacianVariance computes the variance of the 4-neighbour
// Laplacian; low values mean few edges, i.e. blur
func (mc *metricsCalculator) CalculateLaplacianVariance(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < 3 || height < 3 {
		return 0
	}

	data := mc.slicePool.Get().([]float64)
	defer func() { mc.slicePool.Put(data[:0]) }()

	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			center := float64(gray.GrayAt(x, y).Y)
			top := float64(gray.GrayAt(x, y-1).Y)
			bottom := float64(gray.GrayAt(x, y+1).Y)
			left := float64(gray.GrayAt(x-1, y).Y)
			right := float64(gray.GrayAt(x+1, y).Y)

			data = append(data, -4*center+top+bottom+left+right)
		}
	}

	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// CalculateBrightness returns the mean gray level and its standard deviation,
// the latter serving as a contrast measure
func (mc *metricsCalculator) CalculateBrightness(gray *image.Gray) (float64, float64) {
	bounds := gray.Bounds()
	if bounds.Empty() {
		return 0, 0
	}

	data := mc.slicePool.Get().([]float64)
	defer func() { mc.slicePool.Put(data[:0]) }()

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			data = append(data, float64(gray.GrayAt(x, y).Y))
		}
	}

	mean, variance := stat.MeanVariance(data, nil)
	if len(data) < 2 || math.IsNaN(variance) {
		return mean, 0
	}
	return mean, math.Sqrt(variance)
}
