package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// WorkflowEvent is one step of a capture session's run
type WorkflowEvent struct {
	EventType    EventType              `json:"event_type"`
	Timestamp    time.Time              `json:"timestamp"`
	SessionID    string                 `json:"session_id"`
	Generation   uint64                 `json:"generation"`
	Source       string                 `json:"source,omitempty"`
	Elapsed      time.Duration          `json:"elapsed,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of workflow event
type EventType string

const (
	CaptureStarted EventType = "capture_started"
	ImageAcquired  EventType = "image_acquired"
	CaptureFailed  EventType = "capture_failed"
	OCRProgress    EventType = "ocr_progress"
	TextRecognized EventType = "text_recognized"
	EmptyText      EventType = "empty_text"
	OCRFailed      EventType = "ocr_failed"
	AnswerReceived EventType = "answer_received"
	AnswerFailed   EventType = "answer_failed"
	StaleDiscarded EventType = "stale_discarded"
	SessionRetaken EventType = "retake"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event WorkflowEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event WorkflowEvent)
}

// LoggingObserver logs workflow events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent logs the event; failures at error level, progress at debug
func (o *LoggingObserver) OnEvent(ctx context.Context, event WorkflowEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"session_id": event.SessionID,
		"generation": event.Generation,
	}
	if event.Source != "" {
		fields["source"] = event.Source
	}
	if event.Elapsed > 0 {
		fields["elapsed"] = event.Elapsed.String()
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case CaptureStarted:
		entry.Info("Capture started")
	case ImageAcquired:
		entry.Info("Image acquired")
	case OCRProgress:
		entry.Debug("Recognition progress")
	case TextRecognized:
		entry.Info("Text recognized")
	case AnswerReceived:
		entry.Info("Answer received")
	case EmptyText:
		entry.Warn("No text recognized")
	case StaleDiscarded:
		entry.Warn("Discarded result of superseded capture")
	case CaptureFailed, OCRFailed, AnswerFailed:
		entry.Error("Capture workflow failed")
	case SessionRetaken:
		entry.Info("Session reset for retake")
	default:
		entry.Info("Workflow event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver counts workflow outcomes
type MetricsObserver struct {
	mu              sync.RWMutex
	captures        int64
	answered        int64
	captureFailures int64
	emptyText       int64
	ocrFailures     int64
	answerFailures  int64
	staleDiscarded  int64
	retakes         int64
	totalAnswerTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles workflow events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event WorkflowEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case CaptureStarted:
		o.captures++
	case AnswerReceived:
		o.answered++
		o.totalAnswerTime += event.Elapsed
	case CaptureFailed:
		o.captureFailures++
	case EmptyText:
		o.emptyText++
	case OCRFailed:
		o.ocrFailures++
	case AnswerFailed:
		o.answerFailures++
	case StaleDiscarded:
		o.staleDiscarded++
	case SessionRetaken:
		o.retakes++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgAnswerTime := time.Duration(0)
	if o.answered > 0 {
		avgAnswerTime = o.totalAnswerTime / time.Duration(o.answered)
	}

	return map[string]interface{}{
		"captures":          o.captures,
		"answered":          o.answered,
		"capture_failures":  o.captureFailures,
		"empty_text":        o.emptyText,
		"ocr_failures":      o.ocrFailures,
		"answer_failures":   o.answerFailures,
		"stale_discarded":   o.staleDiscarded,
		"retakes":           o.retakes,
		"avg_answer_time":   avgAnswerTime.String(),
		"total_answer_time": o.totalAnswerTime.String(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() Subject {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers event to every observer in subscription order on
// the caller's goroutine, so a session's events are observed in the order
// they happened. A panicking observer is logged and skipped.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event WorkflowEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		notify(ctx, observer, event)
	}
}

func notify(ctx context.Context, obs Observer, event WorkflowEvent) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
