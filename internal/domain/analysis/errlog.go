package analysis

import "time"

// Processing phases recorded in the error log.
const (
	PhaseResolve   = "resolve"
	PhaseDownload  = "download"
	PhaseInference = "inference"
	PhaseRetention = "retention"
	PhaseSend      = "send"
)

// ProcessingError is an audit entry for a single failed pipeline step.
// The main analyses row keeps only the final error message; this table
// keeps one entry per failure with its phase.
type ProcessingError struct {
	ID        int64     `json:"id"`
	MessageID string    `json:"message_id"`
	Phase     string    `json:"phase"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
