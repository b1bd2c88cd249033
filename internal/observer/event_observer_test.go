package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type recordingObserver struct {
	name   string
	events []WorkflowEvent
}

func (r *recordingObserver) OnEvent(ctx context.Context, event WorkflowEvent) {
	r.events = append(r.events, event)
}

func (r *recordingObserver) GetObserverName() string { return r.name }

type panickingObserver struct{}

func (panickingObserver) OnEvent(ctx context.Context, event WorkflowEvent) { panic("boom") }
func (panickingObserver) GetObserverName() string                          { return "panicking" }

func TestEventPublisher_DeliversInOrder(t *testing.T) {
	publisher := NewEventPublisher()
	rec := &recordingObserver{name: "rec"}
	publisher.Subscribe(panickingObserver{})
	publisher.Subscribe(rec)

	ctx := context.Background()
	for _, et := range []EventType{CaptureStarted, ImageAcquired, TextRecognized, AnswerReceived} {
		publisher.NotifyObservers(ctx, WorkflowEvent{EventType: et, SessionID: "s1"})
	}

	if len(rec.events) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(rec.events))
	}
	if rec.events[0].EventType != CaptureStarted || rec.events[3].EventType != AnswerReceived {
		t.Errorf("events out of order: %+v", rec.events)
	}
	if rec.events[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be filled in")
	}
}

func TestEventPublisher_Unsubscribe(t *testing.T) {
	publisher := NewEventPublisher()
	rec := &recordingObserver{name: "rec"}
	publisher.Subscribe(rec)
	publisher.Unsubscribe(rec)

	publisher.NotifyObservers(context.Background(), WorkflowEvent{EventType: CaptureStarted})
	if len(rec.events) != 0 {
		t.Errorf("Expected no events after unsubscribe, got %d", len(rec.events))
	}
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetricsObserver()
	ctx := context.Background()

	events := []WorkflowEvent{
		{EventType: CaptureStarted},
		{EventType: AnswerReceived, Elapsed: 2 * time.Second},
		{EventType: CaptureStarted},
		{EventType: AnswerReceived, Elapsed: 4 * time.Second},
		{EventType: CaptureStarted},
		{EventType: EmptyText},
		{EventType: CaptureStarted},
		{EventType: AnswerFailed},
		{EventType: CaptureFailed},
		{EventType: OCRProgress},
		{EventType: SessionRetaken},
	}
	for _, e := range events {
		m.OnEvent(ctx, e)
	}

	metrics := m.GetMetrics()
	checks := map[string]int64{
		"captures":         4,
		"answered":         2,
		"empty_text":       1,
		"answer_failures":  1,
		"capture_failures": 1,
		"ocr_failures":     0,
		"retakes":          1,
	}
	for key, want := range checks {
		if got := metrics[key].(int64); got != want {
			t.Errorf("%s: expected %d, got %d", key, want, got)
		}
	}
	if avg := metrics["avg_answer_time"].(string); avg != "3s" {
		t.Errorf("Expected avg_answer_time 3s, got %s", avg)
	}
}

func TestLoggingObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	obs := NewLoggingObserver(logger)
	obs.OnEvent(context.Background(), WorkflowEvent{
		EventType:    AnswerFailed,
		SessionID:    "s1",
		Generation:   3,
		ErrorMessage: "status 500",
		Metadata:     map[string]interface{}{"status_code": 500},
	})
	// Progress is debug level and filtered out here
	obs.OnEvent(context.Background(), WorkflowEvent{EventType: OCRProgress, SessionID: "s1"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected one log line, got %d: %s", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["level"] != "error" {
		t.Errorf("Expected error level, got %v", entry["level"])
	}
	if entry["session_id"] != "s1" || entry["error"] != "status 500" {
		t.Errorf("missing fields in %v", entry)
	}
	if entry["status_code"] != float64(500) {
		t.Errorf("Expected metadata to be flattened into fields, got %v", entry)
	}
}
