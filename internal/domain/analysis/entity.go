package analysis

import (
	"time"
)

// Status enum for the processing state machine
type Status string

const (
	StatusReceived  Status = "received"
	StatusIgnored   Status = "ignored"
	StatusProcessed Status = "processed"
	StatusError     Status = "error"
)

// Scores maps a class label to the probability returned by the model.
// The source model is not guaranteed calibrated, so the values are not
// required to sum to 1.
type Scores map[string]float64

// MediaRef is the media block carried by an inbound message. At least
// one of URL/ID has to resolve to a fetchable URL before download.
type MediaRef struct {
	URL         string
	ID          string
	ContentType string
}

// Message is the canonical shape of an inbound webhook message,
// independent of which provider transport delivered it.
type Message struct {
	ProviderMessageID string
	FromNumber        string
	Body              string
	Media             *MediaRef
	// PhoneNumberID identifies the business number the reply goes out
	// through (graph-style provider only).
	PhoneNumberID string
	Metadata      map[string]string
}

// NewMessage validates the identity fields that every record is keyed on.
func NewMessage(messageID, from string) (*Message, error) {
	if messageID == "" || from == "" {
		return nil, ErrMissingRequiredField
	}
	return &Message{
		ProviderMessageID: messageID,
		FromNumber:        from,
		Metadata:          map[string]string{},
	}, nil
}

// Aggregate root: one durable row per provider message id.
type Analysis struct {
	ID               int64             `json:"id"`
	MessageID        string            `json:"message_id"`
	WhatsAppNumber   string            `json:"whatsapp_number"`
	Body             string            `json:"body,omitempty"`
	MediaURL         string            `json:"media_url,omitempty"`
	MediaContentType string            `json:"media_content_type,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Scores           Scores            `json:"scores,omitempty"`
	Status           Status            `json:"status"`
	StorageURI       string            `json:"storage_uri,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}
