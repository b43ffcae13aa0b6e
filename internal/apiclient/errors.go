package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinels for errors.Is. Every error returned by this package matches
// exactly one of them, except token store and request encoding errors.
var (
	ErrAuthExpired = errors.New("access token expired")
	ErrAuthInvalid = errors.New("authentication required")
	ErrValidation  = errors.New("validation failed")
	ErrAPI         = errors.New("api request failed")
	ErrNetwork     = errors.New("network error")
)

// Kind classifies an APIError.
type Kind int

const (
	KindAPI Kind = iota
	// KindAuthExpired is a 401 for a request that carried a token. It never
	// leaves the client: the refresh coordinator consumes it.
	KindAuthExpired
	// KindAuthInvalid is terminal: the caller must sign in again.
	KindAuthInvalid
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuthExpired:
		return "auth_expired"
	case KindAuthInvalid:
		return "auth_invalid"
	case KindValidation:
		return "validation"
	default:
		return "api"
	}
}

// NetworkError is a transport failure: the backend produced no HTTP status.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// APIError is a backend response that the envelope marks as failed.
type APIError struct {
	Status  int
	Message string
	Kind    Kind
	// Details carries the backend's "errors" member verbatim, if any.
	Details json.RawMessage
	Err     error

	// Trigger is the caller's own 401 and Cause the reason the refresh it
	// waited on failed. Neither is unwrapped: a failed refresh only matches
	// ErrAuthInvalid.
	Trigger *APIError
	Cause   error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("api %d (%s): %s", e.Status, e.Kind, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": refresh: %v", e.Cause)
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuthExpired:
		return e.Kind == KindAuthExpired
	case ErrAuthInvalid:
		return e.Kind == KindAuthInvalid
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrAPI:
		return e.Kind == KindAPI
	}
	return false
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return KindAuthInvalid
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	default:
		return KindAPI
	}
}

// MessageOf returns the user-facing message of err, or fallback when err
// carries none.
func MessageOf(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
