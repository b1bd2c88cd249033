package repository

import (
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "go-quiz-helper/internal/errors"
	"go-quiz-helper/internal/session"
)

// MemorySessionRepository keeps sessions in process memory only
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*session.CaptureSession
	now      func() time.Time
}

// NewMemorySessionRepository creates an empty in-memory repository
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]*session.CaptureSession),
		now:      time.Now,
	}
}

// Create stores a new idle session under a fresh id
func (r *MemorySessionRepository) Create() *session.CaptureSession {
	s := session.New(uuid.NewString())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
	return s
}

// Get retrieves a session by id
func (r *MemorySessionRepository) Get(id string) (*session.CaptureSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("session not found", ErrSessionNotFound)
	}
	return s, nil
}

// Delete removes a session
func (r *MemorySessionRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return apperrors.NewNotFoundError("session not found", ErrSessionNotFound)
	}
	delete(r.sessions, id)
	return nil
}

// Count returns the number of live sessions
func (r *MemorySessionRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ExpireIdle drops sessions idle for longer than ttl
func (r *MemorySessionRepository) ExpireIdle(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if s.Busy() || s.UpdatedAt().After(cutoff) {
			continue
		}
		delete(r.sessions, id)
		removed++
	}
	return removed
}
