package services

import (
	"errors"
	"fmt"

	"github.com/org-management/org-service/internal/auth"
)

// Error kinds. Classify with errors.Is.
var (
	ErrAlreadyExists      = errors.New("already exists")
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("not authorized")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidToken       = auth.ErrInvalidToken
)

// Error is a classified failure with a client-facing message. Field names the
// offending input for ErrInvalidInput.
type Error struct {
	Kind    error
	Message string
	Field   string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// SagaError reports a lifecycle operation that failed after at least one
// store write was committed. Nothing is rolled back; Completed lists what an
// operator may need to reconcile.
type SagaError struct {
	Operation string
	Step      string
	Completed []string
	Err       error
}

func (e *SagaError) Error() string {
	return fmt.Sprintf("%s organization: step %s failed after %v: %v", e.Operation, e.Step, e.Completed, e.Err)
}

func (e *SagaError) Unwrap() error { return e.Err }

// saga records the committed steps of one lifecycle operation.
type saga struct {
	operation string
	completed []string
}

func (s *saga) done(step string) {
	s.completed = append(s.completed, step)
}

// fail returns err unchanged when nothing has been committed yet.
func (s *saga) fail(step string, err error) error {
	if len(s.completed) == 0 {
		return err
	}
	return &SagaError{
		Operation: s.operation,
		Step:      step,
		Completed: append([]string(nil), s.completed...),
		Err:       err,
	}
}

// outcome labels a lifecycle result for metrics
func outcome(err error) string {
	var sagaErr *SagaError
	var domainErr *Error
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &sagaErr):
		return "failed"
	case errors.As(err, &domainErr):
		return "rejected"
	default:
		return "error"
	}
}
