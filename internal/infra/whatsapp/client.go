package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v17.0"

	// one timeout per call site, none may block indefinitely
	resolveTimeout  = 20
	downloadTimeout = 30
	sendTimeout     = 20
)

// Client talks to the provider's graph API: media metadata, media
// download, and outbound text messages. Credentials are checked at
// call time, not at construction; a missing token fails the specific
// operation only.
type Client struct {
	baseURL     string
	accessToken string
	apiVersion  string

	resolveHTTP  *http.Client
	downloadHTTP *http.Client
	sendHTTP     *http.Client
}

type ClientOption func(*Client)

// WithBaseURL overrides the graph endpoint (tests, proxies).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func NewClient(accessToken, apiVersion string, opts ...ClientOption) *Client {
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	c := &Client{
		baseURL:      defaultBaseURL,
		accessToken:  accessToken,
		apiVersion:   apiVersion,
		resolveHTTP:  newHTTPClient(resolveTimeout),
		downloadHTTP: newHTTPClient(downloadTimeout),
		sendHTTP:     newHTTPClient(sendTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveMediaURL returns ref.URL untouched when present (no network
// call). Otherwise it asks the media-metadata endpoint for ref.ID.
func (c *Client) ResolveMediaURL(ctx context.Context, ref *domain.MediaRef) (string, error) {
	if ref == nil || (ref.URL == "" && ref.ID == "") {
		return "", domain.ErrNoMediaReference
	}
	if ref.URL != "" {
		if err := validateMediaURL(ref.URL); err != nil {
			return "", err
		}
		return ref.URL, nil
	}

	endpoint := fmt.Sprintf("%s/%s/%s?access_token=%s",
		c.baseURL, c.apiVersion, url.PathEscape(ref.ID), url.QueryEscape(c.accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &domain.MediaGatewayError{Err: err}
	}
	resp, err := c.resolveHTTP.Do(req)
	if err != nil {
		return "", &domain.MediaGatewayError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.MediaGatewayError{Status: resp.StatusCode}
	}

	var meta struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return "", &domain.MediaGatewayError{Err: err}
	}
	if meta.URL == "" {
		return "", domain.ErrMediaMetadataMissing
	}
	if err := validateMediaURL(meta.URL); err != nil {
		return "", err
	}
	return meta.URL, nil
}

// Download fetches the media bytes. Single attempt; retry policy, if
// any, belongs above this layer.
func (c *Client) Download(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, &domain.DownloadError{Err: err}
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.downloadHTTP.Do(req)
	if err != nil {
		return nil, &domain.DownloadError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.DownloadError{Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.DownloadError{Err: err}
	}
	return data, nil
}

// SendText posts a text message through the outbound endpoint.
func (c *Client) SendText(ctx context.Context, phoneNumberID, to, text string) error {
	if c.accessToken == "" {
		return &domain.SendError{Err: fmt.Errorf("access token not configured")}
	}
	if phoneNumberID == "" {
		return &domain.SendError{Err: fmt.Errorf("phone number id not configured")}
	}

	endpoint := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, url.PathEscape(phoneNumberID))
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text": map[string]any{
			"preview_url": false,
			"body":        text,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &domain.SendError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &domain.SendError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.sendHTTP.Do(req)
	if err != nil {
		return &domain.SendError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.SendError{Status: resp.StatusCode}
	}
	return nil
}

// validateMediaURL rejects anything a provider would never hand us.
func validateMediaURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &domain.DownloadError{Err: fmt.Errorf("invalid media url: %w", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &domain.DownloadError{Err: fmt.Errorf("invalid media url scheme: %s", u.Scheme)}
	}
	return nil
}

func newHTTPClient(seconds int) *http.Client {
	return &http.Client{Timeout: time.Duration(seconds) * time.Second}
}
