package whatsapp

import (
	"encoding/json"
	"fmt"
	"net/url"

	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
)

// Graph-style webhook body (Meta Cloud API). Only the fields the
// pipeline needs; everything else is ignored on purpose.
type graphPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []graphMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type graphMessage struct {
	ID    string `json:"id"`
	From  string `json:"from"`
	Type  string `json:"type"`
	Image *struct {
		ID       string `json:"id"`
		URL      string `json:"url"`
		Link     string `json:"link"`
		MimeType string `json:"mime_type"`
		Caption  string `json:"caption"`
	} `json:"image"`
}

// ParseGraphPayload walks entry[].changes[].value.messages[] and
// returns the first image message carrying a media block. A payload
// with no such message is not an error: it returns nil, nil and the
// caller maps that to an ignored outcome.
func ParseGraphPayload(body []byte) (*domain.Message, error) {
	var p graphPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedJSON, err)
	}

	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			for _, gm := range change.Value.Messages {
				if gm.Type != "image" || gm.Image == nil {
					continue
				}
				msg, err := domain.NewMessage(gm.ID, gm.From)
				if err != nil {
					return nil, err
				}
				msg.Body = gm.Image.Caption
				msg.PhoneNumberID = change.Value.Metadata.PhoneNumberID
				msg.Metadata["phone_number_id"] = change.Value.Metadata.PhoneNumberID
				mediaURL := gm.Image.URL
				if mediaURL == "" {
					mediaURL = gm.Image.Link
				}
				msg.Media = &domain.MediaRef{
					URL:         mediaURL,
					ID:          gm.Image.ID,
					ContentType: gm.Image.MimeType,
				}
				return msg, nil
			}
		}
	}
	return nil, nil
}

// Fields the form-style provider (Twilio) always names; anything else
// is captured verbatim into metadata instead of rejected.
var knownFormFields = map[string]bool{
	"MessageSid":        true,
	"From":              true,
	"Body":              true,
	"NumMedia":          true,
	"MediaUrl0":         true,
	"MediaContentType0": true,
}

// MessageFromForm normalizes a flat form-encoded payload. Only the
// identity fields are mandatory; a missing media URL yields a message
// without media, which the orchestrator records as ignored.
func MessageFromForm(form url.Values) (*domain.Message, error) {
	msg, err := domain.NewMessage(form.Get("MessageSid"), form.Get("From"))
	if err != nil {
		return nil, err
	}
	msg.Body = form.Get("Body")

	if mediaURL := form.Get("MediaUrl0"); mediaURL != "" {
		msg.Media = &domain.MediaRef{
			URL:         mediaURL,
			ContentType: form.Get("MediaContentType0"),
		}
	}

	for key, values := range form {
		if knownFormFields[key] || len(values) == 0 {
			continue
		}
		msg.Metadata[key] = values[0]
	}
	return msg, nil
}
