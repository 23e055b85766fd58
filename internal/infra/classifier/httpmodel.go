// Package classifier provides the inference backends behind the
// Classifier port. The model itself is an external collaborator; every
// backend here reduces to predict(image path) -> scores.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
)

// ModelServer calls the inference API's /analyze endpoint with the
// image as multipart upload.
type ModelServer struct {
	endpoint string
	http     *http.Client
}

func NewModelServer(endpoint string) *ModelServer {
	return &ModelServer{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (m *ModelServer) Classify(ctx context.Context, imagePath string) (domain.Scores, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+"/analyze", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("model server returned status %d", resp.StatusCode)
	}

	var out struct {
		Probabilities map[string]float64 `json:"probabilities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	if len(out.Probabilities) == 0 {
		return nil, fmt.Errorf("model response has no probabilities")
	}
	return domain.Scores(out.Probabilities), nil
}
