// ABOUTME: HTTP implementation of the answer Service
// ABOUTME: POSTs the ask call with a bearer credential and a long request timeout

package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// requestTimeout bounds one ask call end to end.
const requestTimeout = 3 * time.Minute

// HTTPService calls the answer service over HTTP.
type HTTPService struct {
	baseURL string
	client  *http.Client
}

// NewHTTPService creates a client for the answer service at baseURL.
func NewHTTPService(baseURL string) *HTTPService {
	return &HTTPService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// Ask sends one question and decodes the response.
func (s *HTTPService) Ask(ctx context.Context, req AskRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding ask request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/send-message", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building ask request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling answer service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a bounded slice of the body for the log line.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrResponse, resp.StatusCode, string(detail))
	}

	var chat ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("decoding answer: %w", err)
	}
	return &chat, nil
}

// Close releases idle connections.
func (s *HTTPService) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
