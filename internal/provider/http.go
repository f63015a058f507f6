package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Failure codes reported by the HTTP client.
const (
	CodeRequestBuild = "request_build"
	CodeTransport    = "transport"
	CodeRejected     = "rejected"
	CodeServerError  = "server_error"
)

// HTTPClient delivers messages to a provider endpoint over HTTP POST, signing
// each payload with HMAC-SHA256.
type HTTPClient struct {
	endpoint   string
	secretKey  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient creates a provider client with a configured HTTP client.
func NewHTTPClient(endpoint, secretKey string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		endpoint:  endpoint,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type providerResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

// Send posts the payload to the provider endpoint and classifies the outcome.
// 4xx responses are permanent failures; 5xx and transport errors are transient.
func (c *HTTPClient) Send(ctx context.Context, reqData Request) Result {
	start := time.Now()

	signature := computeHMAC(reqData.Payload, c.secretKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqData.Payload))
	if err != nil {
		return Failure(CodeRequestBuild, fmt.Sprintf("failed to create request: %v", err), true)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Provider-Signature", signature)
	req.Header.Set("X-Provider-Recipient", reqData.Recipient)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Failure(CodeTransport, fmt.Sprintf("request failed: %v", err), false)
	}
	defer resp.Body.Close()

	// Limit to 4KB to keep stored response payloads bounded
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	elapsed := time.Since(start).Milliseconds()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed providerResponse
		_ = json.Unmarshal(body, &parsed)
		c.logger.Info("provider send successful",
			"recipient", reqData.Recipient,
			"status_code", resp.StatusCode,
			"response_time_ms", elapsed,
		)
		return Sent(parsed.MessageID, string(body))

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		c.logger.Warn("provider rejected message",
			"recipient", reqData.Recipient,
			"status_code", resp.StatusCode,
			"response_time_ms", elapsed,
		)
		return Failure(CodeRejected, fmt.Sprintf("provider returned %d: %s", resp.StatusCode, body), true)

	default:
		c.logger.Warn("provider send failed",
			"recipient", reqData.Recipient,
			"status_code", resp.StatusCode,
			"response_time_ms", elapsed,
		)
		return Failure(CodeServerError, fmt.Sprintf("provider returned %d: %s", resp.StatusCode, body), false)
	}
}

// computeHMAC generates an HMAC-SHA256 signature for the payload.
func computeHMAC(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
