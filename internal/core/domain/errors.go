package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every lookup miss.
var ErrNotFound = errors.New("not found")

// NotFoundError reports that no trip exists for an id.
type NotFoundError struct {
	TripID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("could not find trip with ID '%s'", e.TripID)
}

// Is lets callers use errors.Is(err, ErrNotFound).
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IngestionKind classifies why an ingestion failed.
type IngestionKind int

const (
	KindRemoteUnavailable IngestionKind = iota + 1
	KindMalformedPayload
	KindPersistence
)

func (k IngestionKind) String() string {
	switch k {
	case KindRemoteUnavailable:
		return "RemoteUnavailable"
	case KindMalformedPayload:
		return "MalformedPayload"
	case KindPersistence:
		return "PersistenceFailure"
	default:
		return "Unknown"
	}
}

// IngestionError is returned by every failed fetch-extract-persist sequence.
// The message keeps the historical "Reason:" format; Kind and Unwrap expose
// what the message alone cannot.
type IngestionError struct {
	TripID string
	Kind   IngestionKind
	Err    error
}

func (e *IngestionError) Error() string {
	reason := "unknown error"
	if e.Err != nil {
		reason = e.Err.Error()
	}
	return fmt.Sprintf("could not save trip with ID '%s'. Reason: %s", e.TripID, reason)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the call can succeed without the
// remote payload changing.
func (e *IngestionError) Retryable() bool {
	return e.Kind == KindRemoteUnavailable || e.Kind == KindPersistence
}

// ErrMissingPattern is the cause recorded when the routing API returns a trip
// without pattern.code.
var ErrMissingPattern = errors.New("trip has no pattern code")

// ErrMalformedPayload is wrapped by remote sources when a response cannot be decoded.
var ErrMalformedPayload = errors.New("malformed payload")

// ParseIngestionKind is the inverse of IngestionKind.String.
func ParseIngestionKind(s string) IngestionKind {
	switch s {
	case "RemoteUnavailable":
		return KindRemoteUnavailable
	case "MalformedPayload":
		return KindMalformedPayload
	case "PersistenceFailure":
		return KindPersistence
	default:
		return 0
	}
}
