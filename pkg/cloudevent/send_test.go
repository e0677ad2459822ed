package cloudevent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSend(t *testing.T) {
	t.Parallel()
	var gotType, gotSubject, gotSignature, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Ce-Type")
		gotSubject = r.Header.Get("Ce-Subject")
		gotSignature = r.Header.Get("X-Signature-256")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewSender(5 * time.Second)
	event := New("runner.run.finish", "pipeliner/engine", "run-1", "evt-1", map[string]any{"status": "success"})

	err := s.Send(context.Background(), server.URL, event, SendOptions{SigningKey: "test-key"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotType != "runner.run.finish" {
		t.Errorf("Ce-Type = %q, want runner.run.finish", gotType)
	}
	if gotSubject != "run-1" {
		t.Errorf("Ce-Subject = %q, want run-1", gotSubject)
	}
	if gotContentType != "application/cloudevents+json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if len(gotSignature) < 7 || gotSignature[:7] != "sha256=" {
		t.Errorf("expected signed request, got signature %q", gotSignature)
	}
}

func TestSend_ErrorStatus(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	s := NewSender(5 * time.Second)
	event := New("runner.run.start", "pipeliner/engine", "run-1", "evt-1", nil)

	err := s.Send(context.Background(), server.URL, event, SendOptions{})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	he, ok := err.(*HTTPError)
	if !ok {
		t.Fatalf("expected *HTTPError, got %T", err)
	}
	if he.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", he.StatusCode)
	}
}

func TestHTTPError_Error(t *testing.T) {
	t.Parallel()
	tests := []struct {
		statusCode int
		expected   string
	}{
		{400, "HTTP 400"},
		{404, "HTTP 404"},
		{500, "HTTP 500"},
		{503, "HTTP 503"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			t.Parallel()
			err := &HTTPError{StatusCode: tt.statusCode}
			if err.Error() != tt.expected {
				t.Errorf("HTTPError{%d}.Error() = %q, want %q", tt.statusCode, err.Error(), tt.expected)
			}
		})
	}
}

func TestIsClientError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"400 Bad Request", &HTTPError{StatusCode: 400}, true},
		{"404 Not Found", &HTTPError{StatusCode: 404}, true},
		{"499 client error boundary", &HTTPError{StatusCode: 499}, true},
		{"500 Internal Server Error", &HTTPError{StatusCode: 500}, false},
		{"503 Service Unavailable", &HTTPError{StatusCode: 503}, false},
		{"non-HTTP error", context.DeadlineExceeded, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := IsClientError(tt.err)
			if got != tt.expected {
				t.Errorf("IsClientError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestGenerateSignature(t *testing.T) {
	t.Parallel()
	payload := []byte(`{"test":"data"}`)
	key := "secret-key"

	signature := generateSignature(payload, key)

	if len(signature) < 7 || signature[:7] != "sha256=" {
		t.Errorf("signature should start with 'sha256=', got %q", signature)
	}

	hexPart := signature[7:]
	if len(hexPart) != 64 {
		t.Errorf("signature hex part should be 64 chars, got %d", len(hexPart))
	}

	// Deterministic
	if signature != generateSignature(payload, key) {
		t.Error("signature should be deterministic")
	}

	// Different key, different signature
	if signature == generateSignature(payload, "different-key") {
		t.Error("different keys should produce different signatures")
	}
}
