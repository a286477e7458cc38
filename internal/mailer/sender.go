package mailer

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPRelaySender posts payloads to the platform mail relay with an
// HMAC signature so the relay can authenticate this service.
type HTTPRelaySender struct {
	client  *http.Client
	url     string
	secret  string
	timeout time.Duration
}

func NewHTTPRelaySender(url, secret string, timeout time.Duration) *HTTPRelaySender {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRelaySender{
		client:  &http.Client{},
		url:     url,
		secret:  secret,
		timeout: timeout,
	}
}

func (s *HTTPRelaySender) Endpoint() string {
	return s.url
}

// Send posts the payload. Headers: X-Notify-Attempt-ID, X-Notify-Kind,
// X-Notify-Signature (HMAC-SHA256 of the body).
func (s *HTTPRelaySender) Send(ctx context.Context, req RelayRequest) RelayResult {
	start := time.Now()

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return RelayResult{Error: fmt.Errorf("marshal: %w", err), Duration: time.Since(start)}
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return RelayResult{Error: fmt.Errorf("create request: %w", err), Duration: time.Since(start)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Notify-Attempt-ID", req.AttemptID)
	httpReq.Header.Set("X-Notify-Kind", string(req.Kind))
	httpReq.Header.Set("X-Notify-Signature", computeSignature(s.secret, body))

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return RelayResult{Error: fmt.Errorf("send: %w", err), Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	return RelayResult{StatusCode: resp.StatusCode, Duration: time.Since(start)}
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature lets the relay verify a request body signature.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := computeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
