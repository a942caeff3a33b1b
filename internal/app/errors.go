package app

import (
	"fmt"
	"net/http"
)

// Error codes are "<type>:<surface>", e.g. "not_found:poll".
const (
	errBadRequest   = "bad_request"
	errUnauthorized = "unauthorized"
	errForbidden    = "forbidden"
	errNotFound     = "not_found"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func badRequest(surface, message string) *DomainError {
	return domainError(http.StatusBadRequest, errBadRequest+":"+surface, message, nil)
}

func unauthorized(surface, message string) *DomainError {
	return domainError(http.StatusUnauthorized, errUnauthorized+":"+surface, message, nil)
}

func forbidden(surface, message string) *DomainError {
	return domainError(http.StatusForbidden, errForbidden+":"+surface, message, nil)
}

func notFound(surface, message string) *DomainError {
	return domainError(http.StatusNotFound, errNotFound+":"+surface, message, nil)
}
