package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/medinsight/insight-engine/internal/infrastructure/resilience"
)

func writeTestDocument(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o600); err != nil {
		t.Fatalf("write test document: %v", err)
	}
	return path
}

func TestRecognizeDecodesEngineResponse(t *testing.T) {
	var gotFileType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/recognize" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotFileType = r.FormValue("file_type")
		if _, _, err := r.FormFile("file"); err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":         true,
			"text":            "Patient diagnosed with hypertension.",
			"confidence":      0.91,
			"processing_time": 1.2,
			"pages":           2,
		})
	}))
	defer server.Close()

	client := New(server.URL, Options{})
	result, err := client.Recognize(context.Background(), writeTestDocument(t), "pdf")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success result")
	}
	if result.Text != "Patient diagnosed with hypertension." {
		t.Errorf("unexpected text %q", result.Text)
	}
	if result.Confidence != 0.91 || result.Pages != 2 {
		t.Errorf("unexpected result fields: %+v", result)
	}
	if gotFileType != "pdf" {
		t.Errorf("file_type field = %q, want pdf", gotFileType)
	}
}

func TestRecognizeReportsEngineFailurePayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "unreadable scan",
		})
	}))
	defer server.Close()

	client := New(server.URL, Options{})
	result, err := client.Recognize(context.Background(), writeTestDocument(t), "jpg")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure result")
	}
	if result.Err != "unreadable scan" {
		t.Errorf("error message = %q", result.Err)
	}
}

func TestRecognizeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "engine restarting", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "text": "ok", "confidence": 0.8})
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
	client := New(server.URL, Options{ResilienceExecutor: executor})
	result, err := client.Recognize(context.Background(), writeTestDocument(t), "pdf")
	if err != nil {
		t.Fatalf("Recognize after retry: %v", err)
	}
	if !result.Success || result.Text != "ok" {
		t.Errorf("unexpected result: %+v", result)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server calls = %d, want 2", got)
	}
}

func TestRecognizeDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unsupported media", http.StatusUnsupportedMediaType)
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		BreakerEnabled:      false,
	})
	client := New(server.URL, Options{ResilienceExecutor: executor})
	if _, err := client.Recognize(context.Background(), writeTestDocument(t), "pdf"); err == nil {
		t.Fatal("expected error for 4xx response")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}
