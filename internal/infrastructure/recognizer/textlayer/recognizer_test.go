package textlayer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecognizeRejectsNonPDFTypes(t *testing.T) {
	recognizer := New()
	result, err := recognizer.Recognize(context.Background(), "/tmp/irrelevant.jpg", "jpg")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for jpg input")
	}
	if !strings.Contains(result.Err, "jpg") {
		t.Errorf("error should name the file type, got %q", result.Err)
	}
}

func TestRecognizeFailsOnUnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("not a pdf"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	recognizer := New()
	result, err := recognizer.Recognize(context.Background(), path, "pdf")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for malformed pdf")
	}
	if result.Err == "" {
		t.Error("expected a diagnostic message")
	}
}

func TestRecognizeFailsOnMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.pdf")
	recognizer := New()
	result, err := recognizer.Recognize(context.Background(), path, "pdf")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure result")
	}
}
