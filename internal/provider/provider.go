package provider

import (
	"context"
	"encoding/json"
)

// Request is one resolved outbound message handed to a provider.
type Request struct {
	Recipient string          `json:"recipient"`
	Channel   string          `json:"channel,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// FailureReason classifies a failed send. Permanent failures (malformed
// recipient, rejected payload) are not expected to succeed on retry.
type FailureReason struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Permanent bool   `json:"permanent"`
}

// Result is the outcome of one provider call. Failure is a value here, not an
// error — callers branch on Reason instead of unwrapping exception-style
// errors.
type Result struct {
	Success           bool           `json:"success"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	ResponseBody      string         `json:"response_body,omitempty"`
	Reason            *FailureReason `json:"reason,omitempty"`
}

// Client sends one message to the external provider. Implementations must be
// safe for concurrent use.
type Client interface {
	Send(ctx context.Context, req Request) Result
}

// Failure builds a failed Result.
func Failure(code, message string, permanent bool) Result {
	return Result{Reason: &FailureReason{Code: code, Message: message, Permanent: permanent}}
}

// Sent builds a successful Result.
func Sent(providerMessageID, responseBody string) Result {
	return Result{Success: true, ProviderMessageID: providerMessageID, ResponseBody: responseBody}
}
