package database

import (
	"errors"
	"fmt"
)

var (
	ErrInitialization      = errors.New("database initialization failed")
	ErrNotFound            = errors.New("record not found")
	ErrConstraintViolation = errors.New("natural key already owned by another record")
	ErrInvalidFeed         = errors.New("invalid feed")
	ErrInvalidArticle      = errors.New("invalid article")
	ErrCacheMiss           = errors.New("cache miss")
)

// InitError is returned by Open when the store cannot be brought up.
// It matches both ErrInitialization and the underlying cause.
type InitError struct {
	Op  string
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("failed to initialize database (%s): %v", e.Op, e.Err)
}

func (e *InitError) Unwrap() []error {
	return []error{ErrInitialization, e.Err}
}
