package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
)

func TestResolveMediaURLPassthrough(t *testing.T) {
	c := NewClient("tok", "v17.0")

	got, err := c.ResolveMediaURL(context.Background(), &domain.MediaRef{URL: "https://cdn/x.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x.jpg", got)
}

func TestResolveMediaURLByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v17.0/m1", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
		json.NewEncoder(w).Encode(map[string]string{"url": "https://x/img.jpg"})
	}))
	defer srv.Close()

	c := NewClient("tok", "v17.0", WithBaseURL(srv.URL))

	got, err := c.ResolveMediaURL(context.Background(), &domain.MediaRef{ID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "https://x/img.jpg", got)
}

func TestResolveMediaURLGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("tok", "v17.0", WithBaseURL(srv.URL))

	_, err := c.ResolveMediaURL(context.Background(), &domain.MediaRef{ID: "m1"})
	var gw *domain.MediaGatewayError
	require.ErrorAs(t, err, &gw)
	assert.Equal(t, http.StatusNotFound, gw.Status)
}

func TestResolveMediaURLMetadataIncomplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "m1"})
	}))
	defer srv.Close()

	c := NewClient("tok", "v17.0", WithBaseURL(srv.URL))

	_, err := c.ResolveMediaURL(context.Background(), &domain.MediaRef{ID: "m1"})
	assert.ErrorIs(t, err, domain.ErrMediaMetadataMissing)
}

func TestResolveMediaURLNoReference(t *testing.T) {
	c := NewClient("tok", "v17.0")

	_, err := c.ResolveMediaURL(context.Background(), &domain.MediaRef{})
	assert.ErrorIs(t, err, domain.ErrNoMediaReference)

	_, err = c.ResolveMediaURL(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrNoMediaReference)
}

func TestDownloadSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte("imagebytes"))
	}))
	defer srv.Close()

	c := NewClient("tok", "v17.0")

	data, err := c.Download(context.Background(), srv.URL+"/media/1")
	require.NoError(t, err)
	assert.Equal(t, []byte("imagebytes"), data)
}

func TestDownloadUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient("", "v17.0")

	_, err := c.Download(context.Background(), srv.URL)
	var de *domain.DownloadError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusForbidden, de.Status)
}

func TestDownloadTransportFailure(t *testing.T) {
	c := NewClient("", "v17.0")

	_, err := c.Download(context.Background(), "http://127.0.0.1:1/never")
	var de *domain.DownloadError
	require.ErrorAs(t, err, &de)
	assert.Zero(t, de.Status)
	assert.Error(t, de.Err)
}

func TestSendTextPostsOutboundMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v17.0/p1/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("tok", "v17.0", WithBaseURL(srv.URL))

	err := c.SendText(context.Background(), "p1", "5511999", "laudo pronto")
	require.NoError(t, err)
	assert.Equal(t, "whatsapp", got["messaging_product"])
	assert.Equal(t, "5511999", got["to"])
	text := got["text"].(map[string]any)
	assert.Equal(t, "laudo pronto", text["body"])
}

func TestSendTextFailures(t *testing.T) {
	c := NewClient("", "v17.0")
	var se *domain.SendError
	require.ErrorAs(t, c.SendText(context.Background(), "p1", "55", "x"), &se)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c = NewClient("tok", "v17.0", WithBaseURL(srv.URL))
	err := c.SendText(context.Background(), "p1", "55", "x")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Status)
}
