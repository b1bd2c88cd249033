package repository

import "errors"

// ErrSessionNotFound indicates no session exists for the id
var ErrSessionNotFound = errors.New("session not found")
