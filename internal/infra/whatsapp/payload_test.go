package whatsapp

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
)

func TestParseGraphPayloadFirstImageMessage(t *testing.T) {
	body := []byte(`{"entry":[{"changes":[{"value":{
		"metadata":{"phone_number_id":"p1"},
		"messages":[
			{"id":"wamid.txt","from":"551199","type":"text"},
			{"id":"wamid.img","from":"551199","type":"image",
			 "image":{"id":"m1","mime_type":"image/jpeg","caption":"joelho direito"}}
		]}}]}]}`)

	msg, err := ParseGraphPayload(body)
	require.NoError(t, err)
	require.NotNil(t, msg)

	assert.Equal(t, "wamid.img", msg.ProviderMessageID)
	assert.Equal(t, "551199", msg.FromNumber)
	assert.Equal(t, "joelho direito", msg.Body)
	assert.Equal(t, "p1", msg.PhoneNumberID)
	require.NotNil(t, msg.Media)
	assert.Equal(t, "m1", msg.Media.ID)
	assert.Empty(t, msg.Media.URL)
	assert.Equal(t, "image/jpeg", msg.Media.ContentType)
}

func TestParseGraphPayloadNoImageIsNotAnError(t *testing.T) {
	body := []byte(`{"entry":[{"changes":[{"value":{
		"messages":[{"id":"wamid.1","from":"55","type":"text"}]}}]}]}`)

	msg, err := ParseGraphPayload(body)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestParseGraphPayloadStatusOnlyDelivery(t *testing.T) {
	msg, err := ParseGraphPayload([]byte(`{"entry":[{"changes":[{"value":{}}]}]}`))
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestParseGraphPayloadMalformedJSON(t *testing.T) {
	_, err := ParseGraphPayload([]byte(`{"entry":`))
	assert.ErrorIs(t, err, domain.ErrMalformedJSON)
}

func TestParseGraphPayloadPrefersURLOverLink(t *testing.T) {
	body := []byte(`{"entry":[{"changes":[{"value":{
		"messages":[{"id":"wamid.1","from":"55","type":"image",
		"image":{"link":"https://cdn/x.jpg"}}]}}]}]}`)

	msg, err := ParseGraphPayload(body)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "https://cdn/x.jpg", msg.Media.URL)
}

func TestMessageFromForm(t *testing.T) {
	form := url.Values{
		"MessageSid":        {"SM123"},
		"From":              {"whatsapp:+5511999990000"},
		"Body":              {"segue o exame"},
		"NumMedia":          {"1"},
		"MediaUrl0":         {"https://api.twilio.com/media/1"},
		"MediaContentType0": {"image/png"},
		"AccountSid":        {"AC42"},
		"SmsStatus":         {"received"},
	}

	msg, err := MessageFromForm(form)
	require.NoError(t, err)

	assert.Equal(t, "SM123", msg.ProviderMessageID)
	assert.Equal(t, "whatsapp:+5511999990000", msg.FromNumber)
	assert.Equal(t, "segue o exame", msg.Body)
	require.NotNil(t, msg.Media)
	assert.Equal(t, "https://api.twilio.com/media/1", msg.Media.URL)
	assert.Equal(t, "image/png", msg.Media.ContentType)

	// unrecognized fields land in metadata, type-erased
	assert.Equal(t, "AC42", msg.Metadata["AccountSid"])
	assert.Equal(t, "received", msg.Metadata["SmsStatus"])
	assert.NotContains(t, msg.Metadata, "MessageSid")
}

func TestMessageFromFormNoMedia(t *testing.T) {
	form := url.Values{
		"MessageSid": {"SM9"},
		"From":       {"whatsapp:+55"},
		"NumMedia":   {"0"},
	}

	msg, err := MessageFromForm(form)
	require.NoError(t, err)
	assert.Nil(t, msg.Media)
}

func TestMessageFromFormMissingIdentityFields(t *testing.T) {
	_, err := MessageFromForm(url.Values{"From": {"whatsapp:+55"}})
	assert.ErrorIs(t, err, domain.ErrMissingRequiredField)

	_, err = MessageFromForm(url.Values{"MessageSid": {"SM1"}})
	assert.ErrorIs(t, err, domain.ErrMissingRequiredField)
}
