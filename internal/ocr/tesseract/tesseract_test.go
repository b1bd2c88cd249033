package tesseract

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os/exec"
	"strings"
	"sync"
	"testing"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"go-quiz-helper/internal/ocr"
)

// ensureTesseractAvailable skips when tesseract is not installed.
func ensureTesseractAvailable(t *testing.T) *Engine {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
	engine, err := New(ocr.DefaultLanguage, 6)
	if err != nil {
		t.Skipf("tesseract unusable: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

// renderText draws text in the basic bitmap font and scales it up so the
// glyphs are large enough for recognition
func renderText(t *testing.T, text string) []byte {
	t.Helper()
	small := image.NewRGBA(image.Rect(0, 0, 12+7*len(text), 24))
	draw.Draw(small, small.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  small,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(6, 17),
	}
	d.DrawString(text)

	const scale = 4
	big := image.NewRGBA(image.Rect(0, 0, small.Bounds().Dx()*scale, small.Bounds().Dy()*scale))
	draw.NearestNeighbor.Scale(big, big.Bounds(), small, small.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, big); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestEngineRecognize(t *testing.T) {
	engine := ensureTesseractAvailable(t)

	var mu sync.Mutex
	var events []ocr.Progress
	progress := func(p ocr.Progress) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, p)
	}

	res, err := engine.Recognize(context.Background(), renderText(t, "HELLO QUIZ"), "", progress)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}

	got := strings.ToLower(res.Text)
	if !strings.Contains(got, "hello") || !strings.Contains(got, "quiz") {
		t.Errorf("unexpected OCR output: %q", res.Text)
	}
	if res.Text != strings.TrimSpace(res.Text) {
		t.Errorf("Expected trimmed text, got %q", res.Text)
	}
	if res.Language != ocr.DefaultLanguage {
		t.Errorf("Language = %q, want %q", res.Language, ocr.DefaultLanguage)
	}
	if res.Confidence <= 0 || res.Confidence > 100 {
		t.Errorf("Confidence = %f, want within (0, 100]", res.Confidence)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) == 0 {
		t.Fatal("Expected progress events")
	}
	var statuses []string
	for _, p := range events {
		if len(statuses) == 0 || statuses[len(statuses)-1] != p.Status {
			statuses = append(statuses, p.Status)
		}
	}
	want := []string{ocr.StatusInitializing, ocr.StatusLoadingImage, ocr.StatusRecognizing}
	if strings.Join(statuses, ",") != strings.Join(want, ",") {
		t.Errorf("status order = %v, want %v", statuses, want)
	}
	if last := events[len(events)-1]; last.Status != ocr.StatusRecognizing || last.Progress != 1 {
		t.Errorf("Expected final event recognizing at 1, got %+v", last)
	}
}

func TestEngineRecognize_ExplicitLanguage(t *testing.T) {
	engine := ensureTesseractAvailable(t)

	res, err := engine.Recognize(context.Background(), renderText(t, "ANSWER"), "eng", nil)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if res.Language != "eng" {
		t.Errorf("Language = %q, want eng", res.Language)
	}
}

func TestEngineRecognize_CancelledContext(t *testing.T) {
	engine := ensureTesseractAvailable(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := engine.Recognize(ctx, renderText(t, "TOO LATE"), "", func(ocr.Progress) { called = true })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("Expected no progress for a cancelled recognition")
	}
}

func TestEngineRecognize_BadImage(t *testing.T) {
	engine := ensureTesseractAvailable(t)

	if _, err := engine.Recognize(context.Background(), []byte("not an image"), "", nil); err == nil {
		t.Error("Expected error for undecodable image")
	}
}

func TestEngineClose(t *testing.T) {
	engine := ensureTesseractAvailable(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Close racing with callers must be safe
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = engine.Recognize(ctx, nil, "", nil)
		}()
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	wg.Wait()

	_, err := engine.Recognize(context.Background(), renderText(t, "CLOSED"), "", nil)
	if err == nil || !strings.Contains(err.Error(), "closed") {
		t.Errorf("Expected closed engine error, got %v", err)
	}
}

func TestEngineName(t *testing.T) {
	if (&Engine{}).Name() != "tesseract" {
		t.Error("unexpected engine name")
	}
}
