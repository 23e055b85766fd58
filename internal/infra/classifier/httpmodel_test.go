package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exam.jpg")
	require.NoError(t, os.WriteFile(path, []byte("fake-jpeg"), 0o600))
	return path
}

func TestModelServerClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "exam.jpg", header.Filename)
		json.NewEncoder(w).Encode(map[string]any{
			"classes":       []string{"sick", "healthy"},
			"probabilities": map[string]float64{"sick": 0.82, "healthy": 0.18},
		})
	}))
	defer srv.Close()

	scores, err := NewModelServer(srv.URL).Classify(context.Background(), writeImage(t))
	require.NoError(t, err)
	assert.InDelta(t, 0.82, scores["sick"], 1e-9)
	assert.InDelta(t, 0.18, scores["healthy"], 1e-9)
}

func TestModelServerUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewModelServer(srv.URL).Classify(context.Background(), writeImage(t))
	assert.ErrorContains(t, err, "503")
}

func TestModelServerEmptyProbabilities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"probabilities": map[string]float64{}})
	}))
	defer srv.Close()

	_, err := NewModelServer(srv.URL).Classify(context.Background(), writeImage(t))
	assert.ErrorContains(t, err, "no probabilities")
}

func TestCommandRunnerParsesScores(t *testing.T) {
	r := NewCommandRunner([]string{"echo", `{"sick":0.7,"healthy":0.3}`})

	scores, err := r.Classify(context.Background(), "/tmp/whatever.jpg")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, scores["sick"], 1e-9)
}

func TestCommandRunnerRejectsNonJSON(t *testing.T) {
	r := NewCommandRunner([]string{"echo", "not json"})

	_, err := r.Classify(context.Background(), "/tmp/whatever.jpg")
	assert.ErrorContains(t, err, "score map")
}

func TestCommandRunnerUnconfigured(t *testing.T) {
	r := NewCommandRunner(nil)

	_, err := r.Classify(context.Background(), "/tmp/x.jpg")
	assert.Error(t, err)
}
