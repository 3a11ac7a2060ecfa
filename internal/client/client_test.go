package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/deepverify/internal/prediction"
)

func newTestClient(baseURL string) *Client {
	return New(Config{
		BaseURL:        baseURL,
		RequestTimeout: 2 * time.Second,
		ReadTimeout:    2 * time.Second,
	}, zap.NewNop())
}

func TestPredictSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "upload.jpg", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		_, err = w.Write([]byte(`{"success": true, "predicted_label": "Fake", "predicted_index": 0, "probabilities": {"Real": 0.1458, "Fake": 0.8542}}`))
		require.NoError(t, err)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	result, err := c.Predict(context.Background(), prediction.ImagePayload{Bytes: []byte("fake image bytes")})

	require.NoError(t, err)
	assert.Equal(t, "Fake", result.Label)
	assert.Equal(t, 0.8542, result.ProbFake)
	assert.Equal(t, 0.1458, result.ProbReal)
	assert.False(t, result.IsAuthentic())
}

func TestPredictUsesFilenameFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "holiday.png")
	require.NoError(t, os.WriteFile(path, []byte("png bytes"), 0o600))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "holiday.png", header.Filename)

		_, _ = w.Write([]byte(`{"predicted_label": "Real", "predicted_index": 1, "probabilities": {"Real": 0.99, "Fake": 0.01}}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	result, err := c.Predict(context.Background(), prediction.ImagePayload{Path: path})

	require.NoError(t, err)
	assert.True(t, result.IsAuthentic())
}

func TestPredictRejectsEmptyPayloadWithoutNetworkCall(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Predict(context.Background(), prediction.ImagePayload{})

	require.Error(t, err)
	failure, ok := prediction.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, prediction.FailureValidation, failure.Kind)
	assert.Contains(t, failure.Message, "no image selected")
	assert.Zero(t, requests)
}

func TestPredictDomainErrorInSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error": "Error opening image from bytes", "error_code": "image_decode"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Predict(context.Background(), prediction.ImagePayload{Bytes: []byte("not an image")})

	require.Error(t, err)
	failure, ok := prediction.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, prediction.FailureDomain, failure.Kind)
	assert.Contains(t, failure.Message, "Error opening image from bytes")
}

func TestPredictFileTooLarge(t *testing.T) {
	bodies := []string{`{"detail": "too big"}`, `<html>nginx says no</html>`, ``}
	for _, body := range bodies {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			_, _ = w.Write([]byte(body))
		}))

		c := newTestClient(server.URL)
		_, err := c.Predict(context.Background(), prediction.ImagePayload{Bytes: []byte("x")})
		server.Close()

		require.Error(t, err)
		failure, ok := prediction.AsFailure(err)
		require.True(t, ok)
		assert.Equal(t, prediction.FailurePayloadTooLarge, failure.Kind)
		assert.Equal(t, http.StatusRequestEntityTooLarge, failure.Code)
		assert.Contains(t, failure.Message, "too large")
	}
}

func TestPredictModelUnavailable(t *testing.T) {
	bodies := []string{`{"detail": "Model is not loaded or initialized."}`, `service warming up`}
	for _, body := range bodies {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(body))
		}))

		c := newTestClient(server.URL)
		_, err := c.Predict(context.Background(), prediction.ImagePayload{Bytes: []byte("x")})
		server.Close()

		require.Error(t, err)
		failure, ok := prediction.AsFailure(err)
		require.True(t, ok)
		assert.Equal(t, prediction.FailureModelUnavailable, failure.Kind)
		assert.Equal(t, http.StatusServiceUnavailable, failure.Code)
		assert.Contains(t, failure.Message, "model")
	}
}

func TestPredictUsesDetailFromErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail": "file field is required"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Predict(context.Background(), prediction.ImagePayload{Bytes: []byte("x")})

	require.Error(t, err)
	failure, ok := prediction.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, prediction.FailureServer, failure.Kind)
	assert.Equal(t, "file field is required", failure.Message)
	assert.Equal(t, http.StatusBadRequest, failure.Code)
}

func TestPredictFallsBackToStatusCodeOnUnparseableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Predict(context.Background(), prediction.ImagePayload{Bytes: []byte("x")})

	require.Error(t, err)
	failure, ok := prediction.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, prediction.FailureServer, failure.Kind)
	assert.Equal(t, http.StatusBadGateway, failure.Code)
	assert.Contains(t, failure.Message, "502")
}

func TestPredictUnparseableSuccessBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json at all`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.Predict(context.Background(), prediction.ImagePayload{Bytes: []byte("x")})

	require.Error(t, err)
	failure, ok := prediction.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, prediction.FailureProtocol, failure.Kind)
}

func TestPredictConnectionFailureMentionsBaseURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	baseURL := server.URL
	server.Close()

	c := newTestClient(baseURL)
	_, err := c.Predict(context.Background(), prediction.ImagePayload{Bytes: []byte("x")})

	require.Error(t, err)
	failure, ok := prediction.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, prediction.FailureNetwork, failure.Kind)
	assert.Contains(t, failure.Message, baseURL)
}

func TestPredictResponseHeaderTimeout(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	c := New(Config{
		BaseURL:        server.URL,
		RequestTimeout: 100 * time.Millisecond,
		ReadTimeout:    2 * time.Second,
	}, zap.NewNop())

	_, err := c.Predict(context.Background(), prediction.ImagePayload{Bytes: []byte("x")})

	<-started
	require.Error(t, err)
	failure, ok := prediction.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, prediction.FailureTimeout, failure.Kind)
	assert.Equal(t, prediction.CodeTimeout, failure.Code)
}

func TestPredictBodyReadTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := New(Config{
		BaseURL:        server.URL,
		RequestTimeout: 2 * time.Second,
		ReadTimeout:    100 * time.Millisecond,
	}, zap.NewNop())

	_, err := c.Predict(context.Background(), prediction.ImagePayload{Bytes: []byte("x")})

	require.Error(t, err)
	failure, ok := prediction.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, prediction.FailureTimeout, failure.Kind)
	assert.Equal(t, prediction.CodeTimeout, failure.Code)
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"message": "API is running", "model_loaded": true}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	status, err := c.Health(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "API is running", status.Message)
	assert.True(t, status.ModelLoaded)
}

func TestHealthConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	baseURL := server.URL
	server.Close()

	c := newTestClient(baseURL)
	_, err := c.Health(context.Background())

	require.Error(t, err)
	failure, ok := prediction.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, prediction.FailureNetwork, failure.Kind)
	assert.Contains(t, failure.Message, baseURL)
}
