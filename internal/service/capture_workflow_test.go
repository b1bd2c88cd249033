package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-quiz-helper/internal/analyzer"
	"go-quiz-helper/internal/answer"
	apperrors "go-quiz-helper/internal/errors"
	"go-quiz-helper/internal/observer"
	"go-quiz-helper/internal/ocr"
	"go-quiz-helper/internal/repository"
	"go-quiz-helper/internal/source"
	"go-quiz-helper/pkg/models"
)

const question = "What is 2+2? A)3 B)4 C)5"

type fakeEngine struct {
	text    string
	err     error
	started chan struct{}
	gate    chan struct{}

	mu        sync.Mutex
	languages []string
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(ctx context.Context, img []byte, language string, progress ocr.ProgressFunc) (ocr.Result, error) {
	f.mu.Lock()
	f.languages = append(f.languages, language)
	f.mu.Unlock()

	ocr.Report(progress, ocr.StatusInitializing, 0)
	if f.started != nil {
		close(f.started)
	}
	if f.gate != nil {
		<-f.gate
	}
	ocr.Report(progress, ocr.StatusRecognizing, 1)

	if f.err != nil {
		return ocr.Result{}, f.err
	}
	return ocr.Result{Text: f.text, Confidence: 91, Language: language}, nil
}

func (f *fakeEngine) Close() error { return nil }

type recorder struct {
	mu     sync.Mutex
	events []observer.WorkflowEvent
}

func (r *recorder) OnEvent(ctx context.Context, e observer.WorkflowEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) GetObserverName() string { return "recorder" }

func (r *recorder) types() []observer.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]observer.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType
	}
	return out
}

func (r *recorder) has(t observer.EventType) bool {
	for _, et := range r.types() {
		if et == t {
			return true
		}
	}
	return false
}

// answerAPI is a stand-in for the remote answer service
type answerAPI struct {
	server   *httptest.Server
	requests int32
	last     atomic.Value
}

func newAnswerAPI(t *testing.T, status int, body string) *answerAPI {
	t.Helper()
	api := &answerAPI{}
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&api.requests, 1)
		var req models.AnswerRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		api.last.Store(req.QuestionText)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(api.server.Close)
	return api
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			v := uint8(230)
			if (x/4)%2 == 0 && y > 100 && y < 140 {
				v = 20
			}
			img.SetGray(x, y, color.Gray{v})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T) source.Request {
	return source.Request{
		File:        bytes.NewReader(pngBytes(t)),
		FileName:    "question.png",
		ContentType: "image/png",
	}
}

type fixture struct {
	workflow  CaptureWorkflow
	engine    *fakeEngine
	api       *answerAPI
	events    *recorder
	publisher observer.Subject
}

func newFixture(t *testing.T, engine *fakeEngine, status int, body string) *fixture {
	t.Helper()
	api := newAnswerAPI(t, status, body)
	events := &recorder{}
	publisher := observer.NewEventPublisher()
	publisher.Subscribe(events)

	wf := NewCaptureWorkflow(Dependencies{
		Sessions:  repository.NewMemorySessionRepository(),
		Source:    source.NewUploadSource(source.Limits{MaxBytes: 1 << 20, MaxPixels: 1 << 22}),
		Inspector: analyzer.NewInspector(),
		Engine:    engine,
		Answers:   answer.NewHTTPClient(api.server.URL, 5*time.Second),
		Events:    publisher,
	})
	return &fixture{workflow: wf, engine: engine, api: api, events: events, publisher: publisher}
}

func TestCapture_Success(t *testing.T) {
	f := newFixture(t, &fakeEngine{text: "  " + question + "\n"}, http.StatusOK, `{"answer":"B) 4"}`)
	id := f.workflow.CreateSession().ID

	view, err := f.workflow.Capture(context.Background(), id, uploadRequest(t), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if view.Display != "Answer: B) 4" || view.Answer != "B) 4" || view.ErrorMessage != "" {
		t.Errorf("unexpected view %+v", view)
	}
	if view.IsProcessing || !view.CanCapture || view.Phase != models.PhaseSettled {
		t.Errorf("Expected settled, idle trigger, got %+v", view)
	}
	if view.RecognizedText != question {
		t.Errorf("Expected trimmed text, got %q", view.RecognizedText)
	}
	if view.Image == nil || view.ImageWidth != 320 {
		t.Error("Expected image to be kept on the session")
	}
	if len(view.Choices) != 3 || view.MatchedChoice == nil || view.MatchedChoice.Label != "B" {
		t.Errorf("Expected choice B to be matched, got %+v / %+v", view.Choices, view.MatchedChoice)
	}
	if view.Accuracy != nil {
		t.Error("Expected no accuracy without expected text")
	}

	if atomic.LoadInt32(&f.api.requests) != 1 || f.api.last.Load() != question {
		t.Errorf("Expected one request with the question, got %d / %v", atomic.LoadInt32(&f.api.requests), f.api.last.Load())
	}
	if f.engine.languages[0] != ocr.DefaultLanguage {
		t.Errorf("Expected language eng, got %s", f.engine.languages[0])
	}
	for _, et := range []observer.EventType{observer.CaptureStarted, observer.ImageAcquired, observer.OCRProgress, observer.TextRecognized, observer.AnswerReceived} {
		if !f.events.has(et) {
			t.Errorf("Expected event %s, got %v", et, f.events.types())
		}
	}
}

func TestCapture_EmptyTextMakesNoRequest(t *testing.T) {
	f := newFixture(t, &fakeEngine{text: " \n\t "}, http.StatusOK, `{"answer":"x"}`)
	id := f.workflow.CreateSession().ID

	view, err := f.workflow.Capture(context.Background(), id, uploadRequest(t), "")
	if !apperrors.IsType(err, apperrors.ErrorTypeEmptyText) {
		t.Fatalf("Expected empty_text error, got %v", err)
	}
	if view.ErrorMessage != "No text detected. Please try again with a clearer image." {
		t.Errorf("unexpected message %q", view.ErrorMessage)
	}
	if view.Answer != "" || view.IsProcessing {
		t.Errorf("unexpected view %+v", view)
	}
	if atomic.LoadInt32(&f.api.requests) != 0 {
		t.Errorf("Expected zero outbound requests, got %d", atomic.LoadInt32(&f.api.requests))
	}
}

func TestCapture_AnswerServiceFailure(t *testing.T) {
	f := newFixture(t, &fakeEngine{text: question}, http.StatusInternalServerError, "upstream exploded")
	id := f.workflow.CreateSession().ID

	view, err := f.workflow.Capture(context.Background(), id, uploadRequest(t), "")
	if !apperrors.IsType(err, apperrors.ErrorTypeNetwork) {
		t.Fatalf("Expected network error, got %v", err)
	}
	if view.ErrorMessage != apperrors.MessageProcessingFailed || view.Display != apperrors.MessageProcessingFailed {
		t.Errorf("Expected generic message, got %+v", view)
	}
	if view.RecognizedText != question || view.IsProcessing {
		t.Errorf("unexpected view %+v", view)
	}

	// The response detail reaches the logs through the failure event
	var failed *observer.WorkflowEvent
	for _, e := range f.events.events {
		if e.EventType == observer.AnswerFailed {
			e := e
			failed = &e
		}
	}
	if failed == nil || failed.Metadata["details"] != "upstream exploded" {
		t.Errorf("Expected response body in failure event, got %+v", failed)
	}
}

func TestCapture_OCRFailure(t *testing.T) {
	f := newFixture(t, &fakeEngine{err: errors.New("tesseract crashed")}, http.StatusOK, `{"answer":"x"}`)
	id := f.workflow.CreateSession().ID

	view, err := f.workflow.Capture(context.Background(), id, uploadRequest(t), "")
	if !apperrors.IsType(err, apperrors.ErrorTypeOCR) {
		t.Fatalf("Expected ocr error, got %v", err)
	}
	if view.ErrorMessage != apperrors.MessageProcessingFailed {
		t.Errorf("Expected generic message, got %q", view.ErrorMessage)
	}
	if atomic.LoadInt32(&f.api.requests) != 0 {
		t.Errorf("Expected no answer request, got %d", atomic.LoadInt32(&f.api.requests))
	}
}

func TestCapture_OCRTimeout(t *testing.T) {
	f := newFixture(t, &fakeEngine{err: context.DeadlineExceeded}, http.StatusOK, `{"answer":"x"}`)
	id := f.workflow.CreateSession().ID

	_, err := f.workflow.Capture(context.Background(), id, uploadRequest(t), "")
	if !apperrors.IsType(err, apperrors.ErrorTypeTimeout) {
		t.Fatalf("Expected timeout error, got %v", err)
	}
}

func TestCapture_NoImage(t *testing.T) {
	f := newFixture(t, &fakeEngine{text: question}, http.StatusOK, `{"answer":"x"}`)
	id := f.workflow.CreateSession().ID

	view, err := f.workflow.Capture(context.Background(), id, source.Request{}, "")
	if !apperrors.IsType(err, apperrors.ErrorTypeCapture) {
		t.Fatalf("Expected capture error, got %v", err)
	}
	if view.ErrorMessage != apperrors.MessageCaptureFailed || view.Image != nil {
		t.Errorf("unexpected view %+v", view)
	}
	if len(f.engine.languages) != 0 {
		t.Error("Expected recognition not to run")
	}
}

func TestCapture_WithExpectedText(t *testing.T) {
	f := newFixture(t, &fakeEngine{text: question}, http.StatusOK, `{"answer":"B"}`)
	id := f.workflow.CreateSession().ID

	view, err := f.workflow.Capture(context.Background(), id, uploadRequest(t), question)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Accuracy == nil || view.Accuracy.WER != 0 || view.Accuracy.MatchScore != 100 {
		t.Errorf("Expected perfect accuracy, got %+v", view.Accuracy)
	}
}

func TestCapture_ProcessingFlagAndBusyGuard(t *testing.T) {
	engine := &fakeEngine{text: question, started: make(chan struct{}), gate: make(chan struct{})}
	f := newFixture(t, engine, http.StatusOK, `{"answer":"B) 4"}`)
	id := f.workflow.CreateSession().ID

	if v, _ := f.workflow.GetSession(id); v.IsProcessing {
		t.Fatal("Expected not processing before capture")
	}

	req := uploadRequest(t)
	done := make(chan error, 1)
	go func() {
		_, err := f.workflow.Capture(context.Background(), id, req, "")
		done <- err
	}()
	<-engine.started

	v, _ := f.workflow.GetSession(id)
	if !v.IsProcessing || v.CanCapture {
		t.Errorf("Expected processing while recognizing, got %+v", v)
	}

	_, err := f.workflow.Capture(context.Background(), id, uploadRequest(t), "")
	if !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
		t.Errorf("Expected conflict for overlapping capture, got %v", err)
	}

	close(engine.gate)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := f.workflow.GetSession(id); v.IsProcessing || v.Answer != "B) 4" {
		t.Errorf("Expected settled answer, got %+v", v)
	}
}

// settleWatcher reads the session back while the outcome event is being
// delivered, the way a polling client would
type settleWatcher struct {
	workflow CaptureWorkflow
	watch    map[observer.EventType]bool

	mu    sync.Mutex
	views []models.SessionView
}

func (w *settleWatcher) OnEvent(ctx context.Context, e observer.WorkflowEvent) {
	if !w.watch[e.EventType] {
		return
	}
	v, err := w.workflow.GetSession(e.SessionID)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.views = append(w.views, v)
}

func (w *settleWatcher) GetObserverName() string { return "settle-watcher" }

func TestCapture_NotProcessingWhenOutcomeIsPublished(t *testing.T) {
	testCases := []struct {
		name   string
		engine *fakeEngine
		status int
		body   string
	}{
		{"answer received", &fakeEngine{text: question}, http.StatusOK, `{"answer":"B) 4"}`},
		{"answer failed", &fakeEngine{text: question}, http.StatusBadGateway, "bad gateway"},
		{"empty text", &fakeEngine{text: "   "}, http.StatusOK, `{"answer":"x"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.engine, tc.status, tc.body)
			watcher := &settleWatcher{
				workflow: f.workflow,
				watch: map[observer.EventType]bool{
					observer.AnswerReceived: true,
					observer.AnswerFailed:   true,
					observer.EmptyText:      true,
				},
			}
			f.publisher.Subscribe(watcher)

			id := f.workflow.CreateSession().ID
			_, _ = f.workflow.Capture(context.Background(), id, uploadRequest(t), "")

			watcher.mu.Lock()
			defer watcher.mu.Unlock()
			if len(watcher.views) != 1 {
				t.Fatalf("Expected one outcome event, got %d", len(watcher.views))
			}
			v := watcher.views[0]
			if v.Phase != models.PhaseSettled || v.IsProcessing || !v.CanCapture {
				t.Errorf("Expected settled session with capture enabled, got %+v", v)
			}
			if v.Display == "" {
				t.Error("Expected the outcome to be displayed")
			}
		})
	}
}

func TestCapture_RetakeDiscardsRunInFlight(t *testing.T) {
	engine := &fakeEngine{text: question, started: make(chan struct{}), gate: make(chan struct{})}
	f := newFixture(t, engine, http.StatusOK, `{"answer":"B) 4"}`)
	id := f.workflow.CreateSession().ID

	req := uploadRequest(t)
	done := make(chan error, 1)
	go func() {
		_, err := f.workflow.Capture(context.Background(), id, req, "")
		done <- err
	}()
	<-engine.started

	view, err := f.workflow.Retake(context.Background(), id)
	if err != nil {
		t.Fatalf("Retake: %v", err)
	}
	if view.IsProcessing || view.Image != nil || view.Phase != models.PhaseIdle {
		t.Errorf("Expected initial state after retake, got %+v", view)
	}

	close(engine.gate)
	if err := <-done; err != nil {
		t.Errorf("Expected superseded run to end quietly, got %v", err)
	}

	v, _ := f.workflow.GetSession(id)
	if v.Answer != "" || v.RecognizedText != "" || v.Phase != models.PhaseIdle {
		t.Errorf("stale result leaked into session: %+v", v)
	}
	if atomic.LoadInt32(&f.api.requests) != 0 {
		t.Errorf("Expected superseded run to stop before the answer request, got %d", atomic.LoadInt32(&f.api.requests))
	}
	if !f.events.has(observer.StaleDiscarded) || !f.events.has(observer.SessionRetaken) {
		t.Errorf("Expected retake and discard events, got %v", f.events.types())
	}
}

func TestRetakeAfterSettled(t *testing.T) {
	f := newFixture(t, &fakeEngine{text: question}, http.StatusOK, `{"answer":"B) 4"}`)
	id := f.workflow.CreateSession().ID
	if _, err := f.workflow.Capture(context.Background(), id, uploadRequest(t), ""); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	view, err := f.workflow.Retake(context.Background(), id)
	if err != nil {
		t.Fatalf("Retake: %v", err)
	}
	if view.Image != nil || view.Answer != "" || view.ErrorMessage != "" || !view.CanCapture {
		t.Errorf("Expected initial values, got %+v", view)
	}
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t, &fakeEngine{text: question}, http.StatusOK, `{"answer":"x"}`)

	if _, err := f.workflow.Capture(context.Background(), "nope", uploadRequest(t), ""); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Capture: expected not_found, got %v", err)
	}
	if _, err := f.workflow.Retake(context.Background(), "nope"); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Retake: expected not_found, got %v", err)
	}
	if _, err := f.workflow.GetSession("nope"); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("GetSession: expected not_found, got %v", err)
	}
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t, &fakeEngine{text: question}, http.StatusOK, `{"answer":"x"}`)
	id := f.workflow.CreateSession().ID
	if f.workflow.SessionCount() != 1 {
		t.Fatalf("Expected 1 session, got %d", f.workflow.SessionCount())
	}

	if err := f.workflow.DeleteSession(id); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if f.workflow.SessionCount() != 0 {
		t.Error("Expected session to be gone")
	}
	if err := f.workflow.DeleteSession(id); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Expected not_found on second delete, got %v", err)
	}
}

func TestNames(t *testing.T) {
	f := newFixture(t, &fakeEngine{}, http.StatusOK, `{}`)
	if f.workflow.SourceName() != "upload" || f.workflow.EngineName() != "fake" {
		t.Errorf("unexpected names %s / %s", f.workflow.SourceName(), f.workflow.EngineName())
	}
}
