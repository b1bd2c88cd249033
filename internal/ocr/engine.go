// Package ocr recognizes text in captured images.
package ocr

import "context"

// DefaultLanguage is the only language the quiz helper recognizes
const DefaultLanguage = "eng"

// Progress statuses, in the order an engine reports them
const (
	StatusInitializing = "initializing api"
	StatusLoadingImage = "loading image"
	StatusRecognizing  = "recognizing text"
)

// Progress is an incidental engine event. It is logged and never drives
// control flow.
type Progress struct {
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
}

// ProgressFunc receives progress events; it may be nil
type ProgressFunc func(Progress)

// Result is the outcome of one recognition
type Result struct {
	Text       string
	Confidence float64 // average word confidence, 0-100
	Language   string
}

// Engine recognizes text in an encoded image
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, language string, progress ProgressFunc) (Result, error)
	Close() error
}

// WhileActive wraps fn so it goes quiet once ctx is done. Engines that keep
// working after the caller gave up use it to stop reporting for a run nobody
// is waiting on.
func WhileActive(ctx context.Context, fn ProgressFunc) ProgressFunc {
	if fn == nil {
		return nil
	}
	return func(p Progress) {
		if ctx.Err() == nil {
			fn(p)
		}
	}
}

// Report delivers one progress event to fn if it is set
func Report(fn ProgressFunc, status string, progress float64) {
	if fn != nil {
		fn(Progress{Status: status, Progress: progress})
	}
}
