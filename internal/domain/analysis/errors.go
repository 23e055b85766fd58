package analysis

import (
	"errors"
	"fmt"
)

// Boundary errors (rejected before the pipeline runs)
var (
	ErrMissingSignature     = errors.New("signature header missing")
	ErrMalformedSignature   = errors.New("signature header malformed")
	ErrUnsupportedAlgorithm = errors.New("signature algorithm not supported")
	ErrInvalidSignature     = errors.New("signature mismatch")

	ErrMalformedJSON        = errors.New("payload is not valid JSON")
	ErrMissingRequiredField = errors.New("payload missing message id or sender")
)

// Pipeline errors (caught by the orchestrator, mapped to status=error)
var (
	ErrNoMediaReference     = errors.New("media without url or id")
	ErrMediaMetadataMissing = errors.New("media metadata response has no url")

	// ErrRetentionUnavailable is returned by TemporaryFile.Persist when no
	// retention backend was configured for the manager.
	ErrRetentionUnavailable = errors.New("no retention backend configured")

	// ErrClassifierUnavailable means no classifier backend was configured
	// at startup; the webhook transports answer 503 in that case.
	ErrClassifierUnavailable = errors.New("classifier not configured")
)

// MediaGatewayError wraps any transport or upstream failure while
// resolving media metadata against the provider API.
type MediaGatewayError struct {
	Status int
	Err    error
}

func (e *MediaGatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("media gateway returned status %d", e.Status)
	}
	return fmt.Sprintf("media gateway unreachable: %v", e.Err)
}

func (e *MediaGatewayError) Unwrap() error { return e.Err }

// DownloadError carries either the upstream HTTP status or the
// transport-level cause of a failed media download. Single attempt,
// no retries at this layer.
type DownloadError struct {
	Status int
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("media download returned status %d", e.Status)
	}
	return fmt.Sprintf("media download failed: %v", e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// SendError wraps a failed outbound message. It never reverts an
// already committed record.
type SendError struct {
	Status int
	Err    error
}

func (e *SendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("outbound send returned status %d", e.Status)
	}
	return fmt.Sprintf("outbound send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// PersistenceError is fatal for the request: without a durable record
// the idempotency guarantee is void, so the handler surfaces a 500.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence failed: %v", e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }
