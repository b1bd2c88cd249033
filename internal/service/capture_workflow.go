package service

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"go-quiz-helper/internal/accuracy"
	"go-quiz-helper/internal/analyzer"
	"go-quiz-helper/internal/answer"
	apperrors "go-quiz-helper/internal/errors"
	"go-quiz-helper/internal/logger"
	"go-quiz-helper/internal/observer"
	"go-quiz-helper/internal/ocr"
	"go-quiz-helper/internal/quiz"
	"go-quiz-helper/internal/repository"
	"go-quiz-helper/internal/session"
	"go-quiz-helper/internal/source"
	"go-quiz-helper/pkg/models"
)

// CaptureWorkflow drives sessions from image to answer
type CaptureWorkflow interface {
	CreateSession() models.SessionView
	GetSession(sessionID string) (models.SessionView, error)
	DeleteSession(sessionID string) error

	// Capture runs acquire, recognize, validate, request answer and display
	// for one session. The returned view is valid even when err is not nil.
	Capture(ctx context.Context, sessionID string, req source.Request, expectedText string) (models.SessionView, error)

	// Retake resets the session and discards any run in flight
	Retake(ctx context.Context, sessionID string) (models.SessionView, error)

	SessionCount() int
	SourceName() string
	EngineName() string
}

// Dependencies groups the collaborators of the workflow
type Dependencies struct {
	Sessions  repository.SessionRepository
	Source    source.ImageSource
	Inspector analyzer.Inspector
	Engine    ocr.Engine
	Answers   answer.Client
	Events    observer.Subject
	Language  string
}

type captureWorkflow struct {
	sessions  repository.SessionRepository
	source    source.ImageSource
	inspector analyzer.Inspector
	engine    ocr.Engine
	answers   answer.Client
	events    observer.Subject
	language  string
}

// NewCaptureWorkflow creates the workflow. Inspector and Events are optional.
func NewCaptureWorkflow(deps Dependencies) CaptureWorkflow {
	language := deps.Language
	if language == "" {
		language = ocr.DefaultLanguage
	}
	events := deps.Events
	if events == nil {
		events = observer.NewEventPublisher()
	}

	return &captureWorkflow{
		sessions:  deps.Sessions,
		source:    deps.Source,
		inspector: deps.Inspector,
		engine:    deps.Engine,
		answers:   deps.Answers,
		events:    events,
		language:  language,
	}
}

func (w *captureWorkflow) CreateSession() models.SessionView {
	return w.sessions.Create().View()
}

func (w *captureWorkflow) GetSession(sessionID string) (models.SessionView, error) {
	sess, err := w.sessions.Get(sessionID)
	if err != nil {
		return models.SessionView{}, err
	}
	return sess.View(), nil
}

func (w *captureWorkflow) DeleteSession(sessionID string) error {
	sess, err := w.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	// Invalidate a run in flight before the session disappears
	sess.Retake()
	return w.sessions.Delete(sessionID)
}

func (w *captureWorkflow) SessionCount() int { return w.sessions.Count() }

func (w *captureWorkflow) SourceName() string { return w.source.Name() }

func (w *captureWorkflow) EngineName() string { return w.engine.Name() }

func (w *captureWorkflow) Capture(ctx context.Context, sessionID string, req source.Request, expectedText string) (models.SessionView, error) {
	sess, err := w.sessions.Get(sessionID)
	if err != nil {
		return models.SessionView{}, err
	}

	tok, err := sess.Begin()
	if err != nil {
		return sess.View(), err
	}

	err = w.run(ctx, sess, tok, req, strings.TrimSpace(expectedText))
	return sess.View(), err
}

func (w *captureWorkflow) Retake(ctx context.Context, sessionID string) (models.SessionView, error) {
	sess, err := w.sessions.Get(sessionID)
	if err != nil {
		return models.SessionView{}, err
	}

	sess.Retake()
	w.publish(ctx, observer.WorkflowEvent{EventType: observer.SessionRetaken, SessionID: sessionID})
	return sess.View(), nil
}

// run executes one capture. Succeed and Fail clear the processing flag before
// observers hear about the outcome; the deferred Finish covers runs that end
// without either.
func (w *captureWorkflow) run(ctx context.Context, sess *session.CaptureSession, tok session.Token, req source.Request, expectedText string) error {
	defer sess.Finish(tok)

	start := time.Now()
	event := func(t observer.EventType) observer.WorkflowEvent {
		return observer.WorkflowEvent{
			EventType:  t,
			SessionID:  sess.ID(),
			Generation: uint64(tok),
			Source:     w.source.Name(),
			Elapsed:    time.Since(start),
		}
	}
	w.publish(ctx, event(observer.CaptureStarted))

	// 1. Acquire
	img, err := w.source.Acquire(ctx, req)
	if err != nil {
		if !isAppError(err) {
			err = apperrors.NewCaptureError("failed to acquire image", err)
		}
		return w.fail(ctx, sess, tok, event(observer.CaptureFailed), err)
	}

	hints := w.inspect(sess.ID(), tok, img)
	if !sess.SetImage(tok, img, hints) {
		return w.discard(ctx, event(observer.StaleDiscarded))
	}
	acquired := event(observer.ImageAcquired)
	acquired.Metadata = map[string]interface{}{
		"format": img.Format,
		"width":  img.Width,
		"height": img.Height,
		"bytes":  len(img.Data),
	}
	if len(hints) > 0 {
		acquired.Metadata["quality_hints"] = hints
	}
	w.publish(ctx, acquired)

	// 2. Recognize
	progress := func(p ocr.Progress) {
		e := event(observer.OCRProgress)
		e.Metadata = map[string]interface{}{"status": p.Status, "progress": p.Progress}
		w.publish(ctx, e)
	}
	result, err := w.engine.Recognize(ctx, img.Data, w.language, progress)
	if err != nil {
		return w.fail(ctx, sess, tok, event(observer.OCRFailed), classifyOCRError(err))
	}

	// 3. Validate
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return w.fail(ctx, sess, tok, event(observer.EmptyText),
			apperrors.NewEmptyTextError("recognition produced no text"))
	}

	choices := quiz.ParseChoices(text)
	var acc *models.Accuracy
	if expectedText != "" {
		score := accuracy.Score(expectedText, text)
		acc = &score
	}
	if !sess.SetRecognized(tok, text, choices, acc) {
		return w.discard(ctx, event(observer.StaleDiscarded))
	}
	recognized := event(observer.TextRecognized)
	recognized.Metadata = map[string]interface{}{
		"characters": len(text),
		"confidence": result.Confidence,
		"choices":    len(choices),
	}
	if acc != nil {
		recognized.Metadata["word_error_rate"] = acc.WER
		recognized.Metadata["character_error_rate"] = acc.CER
	}
	w.publish(ctx, recognized)

	// 4. Request answer
	ans, err := w.answers.GetAnswer(ctx, text)
	if err != nil {
		if !isAppError(err) {
			err = apperrors.NewNetworkError("failed to get answer", err)
		}
		return w.fail(ctx, sess, tok, event(observer.AnswerFailed), err)
	}

	// 5. Display
	matched := quiz.MatchAnswer(ans, choices)
	if !sess.Succeed(tok, ans, matched) {
		return w.discard(ctx, event(observer.StaleDiscarded))
	}
	done := event(observer.AnswerReceived)
	if matched != nil {
		done.Metadata = map[string]interface{}{"matched_choice": matched.Label}
	}
	w.publish(ctx, done)
	return nil
}

// inspect computes advisory quality hints; failures are logged and ignored
func (w *captureWorkflow) inspect(sessionID string, tok session.Token, img *models.Image) []string {
	if w.inspector == nil {
		return nil
	}
	report, err := w.inspector.Inspect(img)
	if err != nil {
		logger.ForSession(sessionID, uint64(tok)).WithError(err).Warn("Quality inspection skipped")
		return nil
	}
	return report.Hints
}

// fail settles the session with the user-facing message for err and reports
// the full detail to observers
func (w *captureWorkflow) fail(ctx context.Context, sess *session.CaptureSession, tok session.Token, e observer.WorkflowEvent, err error) error {
	if !sess.Fail(tok, apperrors.UserMessage(err)) {
		e.EventType = observer.StaleDiscarded
		return w.discard(ctx, e)
	}

	e.ErrorMessage = err.Error()
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		e.Metadata = map[string]interface{}{
			"error_type":  string(appErr.Type),
			"status_code": appErr.StatusCode,
		}
		if appErr.Details != "" {
			e.Metadata["details"] = appErr.Details
		}
	}
	w.publish(ctx, e)
	return err
}

// discard drops the outcome of a run superseded by a retake or newer capture
func (w *captureWorkflow) discard(ctx context.Context, e observer.WorkflowEvent) error {
	w.publish(ctx, e)
	return nil
}

func (w *captureWorkflow) publish(ctx context.Context, e observer.WorkflowEvent) {
	w.events.NotifyObservers(ctx, e)
}

func classifyOCRError(err error) error {
	switch {
	case isAppError(err):
		return err
	case stderrors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError("text recognition timed out", err)
	default:
		return apperrors.NewOCRError("text recognition failed", err)
	}
}

func isAppError(err error) bool {
	var appErr *apperrors.AppError
	return stderrors.As(err, &appErr)
}
