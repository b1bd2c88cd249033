// Package tesseract provides the libtesseract-backed OCR engine.
package tesseract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"go-quiz-helper/internal/ocr"
)

// Engine runs recognition through libtesseract. Clients are pooled so
// concurrent sessions do not share one tesseract handle.
type Engine struct {
	mu          sync.RWMutex
	pool        *sync.Pool
	pageSegMode int
}

// New validates the language and page segmentation mode with a
// throwaway client before building the pool.
func New(language string, pageSegMode int) (*Engine, error) {
	probe := gosseract.NewClient()
	defer probe.Close()

	if err := probe.SetLanguage(language); err != nil {
		return nil, fmt.Errorf("failed to set language %q: %w", language, err)
	}
	if pageSegMode > 0 {
		if err := probe.SetPageSegMode(gosseract.PageSegMode(pageSegMode)); err != nil {
			return nil, fmt.Errorf("failed to set page segmentation mode %d: %w", pageSegMode, err)
		}
	}

	return &Engine{
		pageSegMode: pageSegMode,
		pool: &sync.Pool{
			New: func() any {
				client := gosseract.NewClient()
				if pageSegMode > 0 {
					_ = client.SetPageSegMode(gosseract.PageSegMode(pageSegMode))
				}
				return client
			},
		},
	}, nil
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize returns when tesseract finishes or ctx is done, whichever is
// first. An abandoned recognition keeps its client until it completes but
// stops reporting progress.
func (e *Engine) Recognize(ctx context.Context, image []byte, language string, progress ocr.ProgressFunc) (ocr.Result, error) {
	e.mu.RLock()
	pool := e.pool
	e.mu.RUnlock()
	if pool == nil {
		return ocr.Result{}, fmt.Errorf("tesseract engine is closed")
	}
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	if language == "" {
		language = ocr.DefaultLanguage
	}

	type outcome struct {
		res ocr.Result
		err error
	}
	done := make(chan outcome, 1)
	progress = ocr.WhileActive(ctx, progress)

	go func() {
		client := pool.Get().(*gosseract.Client)
		defer pool.Put(client)

		res, err := e.recognizeWithClient(client, image, language, progress)
		done <- outcome{res, err}
	}()

	select {
	case <-ctx.Done():
		return ocr.Result{}, ctx.Err()
	case out := <-done:
		return out.res, out.err
	}
}

func (e *Engine) recognizeWithClient(c *gosseract.Client, image []byte, language string, progress ocr.ProgressFunc) (ocr.Result, error) {
	ocr.Report(progress, ocr.StatusInitializing, 0)
	if err := c.SetLanguage(language); err != nil {
		return ocr.Result{}, fmt.Errorf("set language: %w", err)
	}
	ocr.Report(progress, ocr.StatusInitializing, 1)

	ocr.Report(progress, ocr.StatusLoadingImage, 0)
	if err := c.SetImageFromBytes(image); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	ocr.Report(progress, ocr.StatusLoadingImage, 1)

	ocr.Report(progress, ocr.StatusRecognizing, 0)
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	ocr.Report(progress, ocr.StatusRecognizing, 0.9)

	confidence := averageConfidence(c)
	ocr.Report(progress, ocr.StatusRecognizing, 1)

	return ocr.Result{
		Text:       strings.TrimSpace(text),
		Confidence: confidence,
		Language:   language,
	}, nil
}

// averageConfidence is best effort; a failure to read word boxes leaves the
// text usable with zero confidence
func averageConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes))
}

// Close drops the pool; pooled clients are released by the garbage collector.
// Recognitions already running finish on the clients they hold.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pool = nil
	return nil
}
