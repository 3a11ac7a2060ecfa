package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/deepverify/internal/prediction"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultReadTimeout    = 10 * time.Second

	uploadFieldName  = "file"
	fallbackFilename = "upload.jpg"
)

// Config carries the connection settings for one backend instance. It is
// built once at startup and injected; the client never consults the
// environment or any global state.
type Config struct {
	// BaseURL is the root of the detection API, without a trailing slash.
	BaseURL string
	// RequestTimeout bounds sending the request and receiving the start of
	// the response.
	RequestTimeout time.Duration
	// ReadTimeout separately bounds reading the response body.
	ReadTimeout time.Duration
}

// Client talks to the detection API. Every failure it returns is a
// *prediction.Failure; raw transport errors never escape.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New constructs a client. Zero timeouts fall back to the defaults.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: cfg.RequestTimeout}).DialContext,
				ResponseHeaderTimeout: cfg.RequestTimeout,
			},
		},
		logger: logger.Named("detector_client"),
	}
}

// Predict uploads the image as a single multipart POST and returns the
// parsed verification result. One attempt per call, no retries.
func (c *Client) Predict(ctx context.Context, payload prediction.ImagePayload) (*prediction.VerificationResult, error) {
	data, filename, err := resolvePayload(payload)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(uploadFieldName, filename)
	if err != nil {
		return nil, prediction.NewFailure(prediction.FailureProtocol, fmt.Sprintf("failed to build upload: %v", err))
	}
	if _, err := part.Write(data); err != nil {
		return nil, prediction.NewFailure(prediction.FailureProtocol, fmt.Sprintf("failed to build upload: %v", err))
	}
	if err := writer.Close(); err != nil {
		return nil, prediction.NewFailure(prediction.FailureProtocol, fmt.Sprintf("failed to build upload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/predict", body)
	if err != nil {
		return nil, prediction.NewFailure(prediction.FailureValidation, fmt.Sprintf("invalid request for %s: %v", c.cfg.BaseURL, err))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	c.logger.Debug("submitting image",
		zap.String("filename", filename),
		zap.Int("size_bytes", len(data)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportFailure(err)
	}
	defer resp.Body.Close()

	respBody, err := c.readBody(resp.Body)
	if err != nil {
		return nil, err
	}

	return classifyResponse(resp.StatusCode, respBody)
}

// Health checks the backend root endpoint.
func (c *Client) Health(ctx context.Context) (*prediction.HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/", http.NoBody)
	if err != nil {
		return nil, prediction.NewFailure(prediction.FailureValidation, fmt.Sprintf("invalid request for %s: %v", c.cfg.BaseURL, err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportFailure(err)
	}
	defer resp.Body.Close()

	body, err := c.readBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, prediction.NewStatusFailure(prediction.FailureServer, resp.StatusCode,
			fmt.Sprintf("health check returned status %d", resp.StatusCode))
	}

	var status prediction.HealthStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, prediction.NewFailure(prediction.FailureProtocol, fmt.Sprintf("could not parse health response: %v", err))
	}
	return &status, nil
}

// resolvePayload produces the upload bytes and filename. In-memory bytes
// take precedence; a bare path is read from disk.
func resolvePayload(p prediction.ImagePayload) ([]byte, string, error) {
	if len(p.Bytes) > 0 {
		name := fallbackFilename
		if p.Path != "" {
			name = filepath.Base(p.Path)
		}
		return p.Bytes, name, nil
	}
	if p.Path != "" {
		data, err := os.ReadFile(p.Path)
		if err != nil {
			return nil, "", prediction.NewFailure(prediction.FailureValidation,
				fmt.Sprintf("could not read image file %s: %v", p.Path, err))
		}
		return data, filepath.Base(p.Path), nil
	}
	return nil, "", prediction.NewFailure(prediction.FailureValidation,
		"no image selected: provide image bytes or a file path")
}

// readBody reads the response body under its own time budget, independent
// of the request timeout. On expiry the body is closed to unblock the read.
func (c *Client) readBody(rc io.ReadCloser) ([]byte, error) {
	timer := time.AfterFunc(c.cfg.ReadTimeout, func() { rc.Close() })
	defer timer.Stop()

	data, err := io.ReadAll(rc)
	if err != nil {
		if !timer.Stop() {
			return nil, prediction.NewStatusFailure(prediction.FailureTimeout, prediction.CodeTimeout,
				fmt.Sprintf("timed out reading the response from %s", c.cfg.BaseURL))
		}
		return nil, prediction.NewFailure(prediction.FailureNetwork,
			fmt.Sprintf("failed to read the response from %s: %v", c.cfg.BaseURL, err))
	}
	return data, nil
}

func (c *Client) transportFailure(err error) error {
	if isTimeout(err) {
		return prediction.NewStatusFailure(prediction.FailureTimeout, prediction.CodeTimeout,
			fmt.Sprintf("request to %s timed out", c.cfg.BaseURL))
	}
	return prediction.NewFailure(prediction.FailureNetwork,
		fmt.Sprintf("could not reach the detection service at %s: %v", c.cfg.BaseURL, err))
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classifyResponse turns a status and body into exactly one of a parsed
// result or a typed failure. The mapping is total: no status or body shape
// falls through to a raw error.
func classifyResponse(status int, body []byte) (*prediction.VerificationResult, error) {
	switch status {
	case http.StatusOK:
		var envelope struct {
			Error     string `json:"error"`
			ErrorCode string `json:"error_code"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, prediction.NewStatusFailure(prediction.FailureProtocol, status,
				fmt.Sprintf("could not parse the server response: %v", err))
		}
		if envelope.Error != "" {
			return nil, prediction.NewStatusFailure(prediction.FailureDomain, status,
				fmt.Sprintf("the server rejected the image: %s", envelope.Error))
		}

		var pred prediction.Prediction
		if err := json.Unmarshal(body, &pred); err != nil {
			return nil, prediction.NewStatusFailure(prediction.FailureProtocol, status,
				fmt.Sprintf("could not parse the server response: %v", err))
		}
		if len(pred.Probabilities) == 0 {
			return nil, prediction.NewStatusFailure(prediction.FailureProtocol, status,
				"the server response is missing class probabilities")
		}
		return prediction.NewVerificationResult(&pred), nil

	case http.StatusRequestEntityTooLarge:
		return nil, prediction.NewStatusFailure(prediction.FailurePayloadTooLarge, status,
			"the image file is too large: the server accepts uploads up to 10MB")

	case http.StatusServiceUnavailable:
		return nil, prediction.NewStatusFailure(prediction.FailureModelUnavailable, status,
			"the detection model is not available right now: try again shortly")

	default:
		var detail struct {
			Detail string `json:"detail"`
		}
		if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
			return nil, prediction.NewStatusFailure(prediction.FailureServer, status, detail.Detail)
		}
		return nil, prediction.NewStatusFailure(prediction.FailureServer, status,
			fmt.Sprintf("the server returned status %d", status))
	}
}
