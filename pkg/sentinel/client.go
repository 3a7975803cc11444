package sentinel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clestiq/clestiq/pkg/models"
)

// ErrUnavailable reports that Sentinel could not be reached or was itself
// cut off from a dependency. The Gateway maps it to 503.
var ErrUnavailable = errors.New("sentinel service unavailable")

// Client is the Gateway-side HTTP client for the Sentinel service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Chat posts one normalized request for processing and decodes the verdict.
// Transport failures and upstream 5xx replies come back as ErrUnavailable;
// a malformed reply is a plain protocol error.
func (c *Client) Chat(ctx context.Context, req *models.ChatRequest) (*models.SentinelResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("sentinel returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result models.SentinelResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode sentinel response: %w", err)
	}
	return &result, nil
}
