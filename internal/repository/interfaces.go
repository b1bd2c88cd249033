package repository

import (
	"time"

	"go-quiz-helper/internal/session"
)

// SessionRepository defines the interface for capture session storage
type SessionRepository interface {
	// Create stores a new idle session under a fresh id
	Create() *session.CaptureSession

	// Get retrieves a session by id
	Get(id string) (*session.CaptureSession, error)

	// Delete removes a session; deleting an unknown id is an error
	Delete(id string) error

	// Count returns the number of live sessions
	Count() int

	// ExpireIdle drops sessions untouched for longer than ttl, skipping any
	// with a run in flight, and returns how many were removed
	ExpireIdle(ttl time.Duration) int
}
