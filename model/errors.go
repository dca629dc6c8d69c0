package model

import (
	"errors"
	"fmt"
	"time"
)

type ErrorKind string

const (
	ErrAuth             ErrorKind = "AUTH_ERROR"
	ErrRateLimited      ErrorKind = "RATE_LIMITED"
	ErrFetch            ErrorKind = "FETCH_ERROR"
	ErrMalformedRecord  ErrorKind = "MALFORMED_SOURCE_RECORD"
	ErrUnmappedState    ErrorKind = "UNMAPPED_STATE"
	ErrUnmappedProperty ErrorKind = "UNMAPPED_PROPERTY"
	ErrMappingConflict  ErrorKind = "MAPPING_CONFLICT"
	ErrPush             ErrorKind = "PUSH_ERROR"
	ErrTimeout          ErrorKind = "TIMEOUT"
	ErrCancelled        ErrorKind = "CANCELLED"
)

// ImportError is the single error shape flowing through the pipeline. Kind
// decides retryability and whether the failure is fatal to the record or to
// the whole job.
type ImportError struct {
	Kind       ErrorKind
	Message    string
	EntityType EntityType
	ExternalID string
	// RetryAfter is the backoff suggested by the source, set for RATE_LIMITED.
	RetryAfter time.Duration
	// JobLevel marks failures that make further progress impossible (auth
	// revoked, target unreachable). Record-level failures leave it false.
	JobLevel bool
	// Permanent marks fetch/push failures that retrying cannot fix (4xx other
	// than rate limiting).
	Permanent bool
	Err       error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ImportError) Unwrap() error { return e.Err }

// Retryable reports whether the orchestrator may retry the failed call.
func (e *ImportError) Retryable() bool {
	if e.Permanent {
		return false
	}
	switch e.Kind {
	case ErrFetch, ErrPush, ErrTimeout, ErrRateLimited:
		return true
	default:
		return false
	}
}

// PermanentFetchError marks a non-retryable source rejection (4xx other than
// 429), recorded against the specific record rather than the whole job.
func PermanentFetchError(message string, err error) *ImportError {
	return &ImportError{Kind: ErrFetch, Message: message, Permanent: true, Err: err}
}

func NewImportError(kind ErrorKind, message string, err error) *ImportError {
	return &ImportError{Kind: kind, Message: message, Err: err}
}

func AuthError(message string, err error) *ImportError {
	return &ImportError{Kind: ErrAuth, Message: message, JobLevel: true, Err: err}
}

// RateLimitedError pauses the whole job for RetryAfter, it is never charged
// against a single record's retry budget.
func RateLimitedError(retryAfter time.Duration) *ImportError {
	return &ImportError{Kind: ErrRateLimited, Message: "source rate limit hit", RetryAfter: retryAfter, JobLevel: true}
}

func FetchError(message string, err error) *ImportError {
	return &ImportError{Kind: ErrFetch, Message: message, Err: err}
}

func MalformedRecordError(et EntityType, externalID, message string) *ImportError {
	return &ImportError{Kind: ErrMalformedRecord, Message: message, EntityType: et, ExternalID: externalID}
}

func UnmappedStateError(et EntityType, externalID, sourceState string) *ImportError {
	return &ImportError{
		Kind:       ErrUnmappedState,
		Message:    fmt.Sprintf("no target state mapped for source state %q", sourceState),
		EntityType: et,
		ExternalID: externalID,
	}
}

func UnmappedPropertyError(et EntityType, externalID, sourceProperty string) *ImportError {
	return &ImportError{
		Kind:       ErrUnmappedProperty,
		Message:    fmt.Sprintf("no target property mapped for source property %q", sourceProperty),
		EntityType: et,
		ExternalID: externalID,
	}
}

func PushError(et EntityType, externalID string, err error) *ImportError {
	return &ImportError{Kind: ErrPush, Message: "target rejected record", EntityType: et, ExternalID: externalID, Err: err}
}

// AsImportError unwraps err into an *ImportError, wrapping unknown errors as a
// retryable fetch failure so transient transport errors stay retryable.
func AsImportError(err error) *ImportError {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie
	}
	return FetchError("unexpected error", err)
}
