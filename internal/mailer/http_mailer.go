package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/peoplehub/hr-notify/internal/domain"
)

// HTTPMailer delivers mail by POSTing to the provider's send endpoint.
// The base URL is injected from config so tests can point to a local mock.
type HTTPMailer struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPMailer(baseURL string, timeout time.Duration) *HTTPMailer {
	return &HTTPMailer{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts the message and expects a 202 Accepted with a JSON body
// containing the provider message ID.
//
// Classification: network failures, timeouts, 429 and 5xx responses are
// retryable; any other non-202 response (bad address, rejected content)
// is terminal.
func (m *HTTPMailer) Send(ctx context.Context, msg *Message) (*Result, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, &domain.TransportError{Retryable: false, Err: fmt.Errorf("marshal message: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.TransportError{Retryable: false, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &domain.TransportError{
			Retryable: true,
			Err:       fmt.Errorf("provider status %d", resp.StatusCode),
		}
	default:
		return nil, &domain.TransportError{
			Retryable: false,
			Err:       fmt.Errorf("provider rejected message: status %d", resp.StatusCode),
		}
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &domain.TransportError{Retryable: true, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &result, nil
}

var _ Mailer = (*HTTPMailer)(nil)
