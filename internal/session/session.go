// Package session holds the per-user capture state. Every capture run gets a
// generation token; writes carrying an outdated token are dropped, so a run
// superseded by a retake or a newer capture cannot overwrite fresh state.
package session

import (
	"sync"
	"time"

	apperrors "go-quiz-helper/internal/errors"
	"go-quiz-helper/pkg/models"
)

// Token identifies one capture run of a session
type Token uint64

// CaptureSession is the state of one capture-to-answer interaction
type CaptureSession struct {
	mu  sync.Mutex
	id  string
	now func() time.Time

	generation uint64
	phase      models.Phase
	processing bool

	image      *models.Image
	recognized string
	answer     string
	errMsg     string
	quality    []string
	choices    []models.Choice
	matched    *models.Choice
	accuracy   *models.Accuracy

	updatedAt time.Time
}

// New creates an idle session
func New(id string) *CaptureSession {
	return newWithClock(id, time.Now)
}

func newWithClock(id string, now func() time.Time) *CaptureSession {
	return &CaptureSession{
		id:        id,
		now:       now,
		phase:     models.PhaseIdle,
		updatedAt: now(),
	}
}

// ID returns the session identifier
func (s *CaptureSession) ID() string { return s.id }

// Begin starts a capture run. A new capture replaces whatever the previous
// run left behind. It fails with a conflict while a run is in flight.
func (s *CaptureSession) Begin() (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processing {
		return 0, apperrors.NewConflictError("a capture is already being processed")
	}

	s.resetLocked()
	s.processing = true
	s.phase = models.PhaseCapturing
	return Token(s.generation), nil
}

// SetImage records the acquired image and its advisory quality hints
func (s *CaptureSession) SetImage(t Token, img *models.Image, quality []string) bool {
	return s.update(t, func() {
		s.image = img
		s.quality = quality
		s.phase = models.PhaseProcessing
	})
}

// SetRecognized records the recognized text and what was derived from it
func (s *CaptureSession) SetRecognized(t Token, text string, choices []models.Choice, acc *models.Accuracy) bool {
	return s.update(t, func() {
		s.recognized = text
		s.choices = choices
		s.accuracy = acc
	})
}

// Succeed settles the run with an answer
func (s *CaptureSession) Succeed(t Token, answer string, matched *models.Choice) bool {
	return s.update(t, func() {
		s.answer = answer
		s.matched = matched
		s.errMsg = ""
		s.phase = models.PhaseSettled
		s.processing = false
	})
}

// Fail settles the run with a user-facing error message
func (s *CaptureSession) Fail(t Token, message string) bool {
	return s.update(t, func() {
		s.errMsg = message
		s.answer = ""
		s.matched = nil
		s.phase = models.PhaseSettled
		s.processing = false
	})
}

// Finish is meant to be deferred right after Begin. Succeed and Fail already
// clear the processing flag; a run that ends without either is settled here
// as a generic failure.
func (s *CaptureSession) Finish(t Token) {
	s.update(t, func() {
		if s.phase != models.PhaseSettled {
			s.errMsg = apperrors.MessageProcessingFailed
			s.answer = ""
			s.phase = models.PhaseSettled
		}
		s.processing = false
	})
}

// Retake returns the session to its initial state and invalidates any run in
// flight
func (s *CaptureSession) Retake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// Current reports whether t still identifies the latest run
func (s *CaptureSession) Current(t Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(t) == s.generation
}

// Busy reports whether a run is in flight
func (s *CaptureSession) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// UpdatedAt is the time of the last accepted state change
func (s *CaptureSession) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// View renders the state for display
func (s *CaptureSession) View() models.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := models.SessionView{
		ID:             s.id,
		Phase:          s.phase,
		RecognizedText: s.recognized,
		Answer:         s.answer,
		ErrorMessage:   s.errMsg,
		IsProcessing:   s.processing,
		CanCapture:     !s.processing,
		Quality:        append([]string(nil), s.quality...),
		Choices:        append([]models.Choice(nil), s.choices...),
		UpdatedAt:      s.updatedAt,
	}
	if s.image != nil {
		url := s.image.DataURL()
		v.Image = &url
		v.ImageWidth = s.image.Width
		v.ImageHeight = s.image.Height
	}
	if s.matched != nil {
		m := *s.matched
		v.MatchedChoice = &m
	}
	if s.accuracy != nil {
		a := *s.accuracy
		v.Accuracy = &a
	}

	switch {
	case s.answer != "":
		v.Display = "Answer: " + s.answer
	case s.errMsg != "":
		v.Display = s.errMsg
	}
	return v
}

func (s *CaptureSession) update(t Token, apply func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uint64(t) != s.generation {
		return false
	}
	apply()
	s.updatedAt = s.now()
	return true
}

func (s *CaptureSession) resetLocked() {
	s.generation++
	s.phase = models.PhaseIdle
	s.processing = false
	s.image = nil
	s.recognized = ""
	s.answer = ""
	s.errMsg = ""
	s.quality = nil
	s.choices = nil
	s.matched = nil
	s.accuracy = nil
	s.updatedAt = s.now()
}
