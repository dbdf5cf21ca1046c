package model

import (
	"errors"
	"fmt"
)

// Error kinds
const (
	KindValidation        = "validation_error"
	KindAccessDenied      = "access_denied"
	KindInvalidTransition = "invalid_transition"
	KindRetryLimit        = "retry_limit_exceeded"
	KindDependency        = "dependency_unavailable"
	KindNotFound          = "not_found"
)

// DomainError carries a machine-readable kind alongside the message so the
// HTTP layer can map failures to status codes without string matching
type DomainError interface {
	Error() string
	Kind() string
	Message() string
}

type domainError struct {
	kind    string
	message string
}

func (e *domainError) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *domainError) Kind() string {
	return e.kind
}

func (e *domainError) Message() string {
	return e.message
}

func NewValidationError(message string) DomainError {
	return &domainError{kind: KindValidation, message: message}
}

func NewAccessDeniedError(message string) DomainError {
	return &domainError{kind: KindAccessDenied, message: message}
}

func NewInvalidTransitionError(message string) DomainError {
	return &domainError{kind: KindInvalidTransition, message: message}
}

func NewRetryLimitError(message string) DomainError {
	return &domainError{kind: KindRetryLimit, message: message}
}

func NewDependencyError(err error) DomainError {
	return &domainError{kind: KindDependency, message: err.Error()}
}

func NewNotFoundError(message string) DomainError {
	return &domainError{kind: KindNotFound, message: message}
}

// KindOf returns the error kind, or an empty string for plain errors
func KindOf(err error) string {
	var de DomainError
	if errors.As(err, &de) {
		return de.Kind()
	}
	return ""
}
