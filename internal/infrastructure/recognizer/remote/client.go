package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/medinsight/insight-engine/internal/core/domain"
	"github.com/medinsight/insight-engine/internal/infrastructure/resilience"
)

// Client talks to an external OCR service over HTTP. The engine contract:
// it accepts the document bytes plus the declared file kind and answers
// with recognized text, a confidence score and timing. Safe for
// concurrent use; the shared circuit breaker serializes pressure when the
// engine degrades.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

func (c *Client) Recognize(ctx context.Context, path, fileType string) (domain.RecognitionResult, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return domain.RecognitionResult{}, fmt.Errorf("read document for recognition: %w", err)
	}

	var result domain.RecognitionResult
	call := func(callCtx context.Context) error {
		response, err := c.post(callCtx, payload, filepath.Base(path), fileType)
		if err != nil {
			return err
		}
		result = response
		return nil
	}

	if c.executor != nil {
		err = c.executor.Execute(ctx, "ocr.recognize", call, classifyHTTPError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.RecognitionResult{}, err
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, payload []byte, filename, fileType string) (domain.RecognitionResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return domain.RecognitionResult{}, fmt.Errorf("build recognition request: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return domain.RecognitionResult{}, fmt.Errorf("build recognition request: %w", err)
	}
	if err := writer.WriteField("file_type", fileType); err != nil {
		return domain.RecognitionResult{}, fmt.Errorf("build recognition request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return domain.RecognitionResult{}, fmt.Errorf("build recognition request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/recognize", &body)
	if err != nil {
		return domain.RecognitionResult{}, fmt.Errorf("create recognition request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.RecognitionResult{}, transientError{fmt.Errorf("ocr request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return domain.RecognitionResult{}, transientError{formatHTTPError(resp)}
	}
	if resp.StatusCode >= 300 {
		return domain.RecognitionResult{}, formatHTTPError(resp)
	}

	var result domain.RecognitionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.RecognitionResult{}, fmt.Errorf("decode recognition response: %w", err)
	}
	return result, nil
}

func formatHTTPError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("ocr status: %s", resp.Status)
	}
	return fmt.Errorf("ocr status: %s: %s", resp.Status, msg)
}
