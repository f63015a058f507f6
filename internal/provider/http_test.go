package provider

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func setupHTTPClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewHTTPClient(server.URL, "test-secret", logger)
}

func testRequest() Request {
	return Request{
		Recipient: "user@example.com",
		Channel:   "email",
		Payload:   []byte(`{"subject":"hi","body":"hello"}`),
	}
}

func TestHTTPClient_SuccessfulSend(t *testing.T) {
	client := setupHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message_id":"prov-42"}`))
	})

	res := client.Send(context.Background(), testRequest())

	if !res.Success {
		t.Fatalf("expected success, got failure: %+v", res.Reason)
	}
	if res.ProviderMessageID != "prov-42" {
		t.Errorf("expected provider message id prov-42, got %q", res.ProviderMessageID)
	}
	if res.ResponseBody == "" {
		t.Error("expected the raw response body captured")
	}
}

func TestHTTPClient_SignsPayload(t *testing.T) {
	var gotSignature, gotRecipient string
	client := setupHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Provider-Signature")
		gotRecipient = r.Header.Get("X-Provider-Recipient")
		w.WriteHeader(http.StatusOK)
	})

	req := testRequest()
	client.Send(context.Background(), req)

	want := computeHMAC(req.Payload, "test-secret")
	if gotSignature != want {
		t.Errorf("expected signature %q, got %q", want, gotSignature)
	}
	if gotRecipient != "user@example.com" {
		t.Errorf("expected recipient header, got %q", gotRecipient)
	}
}

func TestHTTPClient_RejectionIsPermanent(t *testing.T) {
	client := setupHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid recipient"}`))
	})

	res := client.Send(context.Background(), testRequest())

	if res.Success {
		t.Fatal("4xx should be a failure")
	}
	if res.Reason.Code != CodeRejected {
		t.Errorf("expected code %q, got %q", CodeRejected, res.Reason.Code)
	}
	if !res.Reason.Permanent {
		t.Error("4xx rejection must be permanent")
	}
}

func TestHTTPClient_ServerErrorIsTransient(t *testing.T) {
	client := setupHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	res := client.Send(context.Background(), testRequest())

	if res.Success {
		t.Fatal("5xx should be a failure")
	}
	if res.Reason.Code != CodeServerError {
		t.Errorf("expected code %q, got %q", CodeServerError, res.Reason.Code)
	}
	if res.Reason.Permanent {
		t.Error("5xx must be transient")
	}
}

func TestHTTPClient_TransportErrorIsTransient(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	client := NewHTTPClient("http://127.0.0.1:1", "test-secret", logger)

	res := client.Send(context.Background(), testRequest())

	if res.Success {
		t.Fatal("connection failure should be a failure")
	}
	if res.Reason.Code != CodeTransport {
		t.Errorf("expected code %q, got %q", CodeTransport, res.Reason.Code)
	}
	if res.Reason.Permanent {
		t.Error("transport errors must be transient")
	}
}
