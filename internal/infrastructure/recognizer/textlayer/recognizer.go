// Package textlayer recognizes born-digital PDFs by reading their
// embedded text layer directly, without an external OCR engine. Scanned
// documents and raster images produce a failed recognition result so the
// caller can record the document as unprocessable rather than silently
// storing empty text.
package textlayer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/medinsight/insight-engine/internal/core/domain"
)

type Recognizer struct{}

func New() *Recognizer {
	return &Recognizer{}
}

func (r *Recognizer) Recognize(ctx context.Context, path, fileType string) (domain.RecognitionResult, error) {
	start := time.Now()

	if !strings.EqualFold(fileType, "pdf") {
		return domain.RecognitionResult{
			Success:        false,
			ProcessingTime: time.Since(start).Seconds(),
			Err:            fmt.Sprintf("no text layer reader for %q documents", fileType),
		}, nil
	}

	file, reader, err := pdf.Open(path)
	if err != nil {
		return domain.RecognitionResult{
			Success:        false,
			ProcessingTime: time.Since(start).Seconds(),
			Err:            fmt.Sprintf("open pdf: %v", err),
		}, nil
	}
	defer file.Close()

	pages := reader.NumPage()
	var text strings.Builder
	for pageNum := 1; pageNum <= pages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return domain.RecognitionResult{}, err
		}
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text.WriteString(content)
		text.WriteString("\n")
	}

	recognized := strings.TrimSpace(text.String())
	if recognized == "" {
		return domain.RecognitionResult{
			Success:        false,
			Pages:          pages,
			ProcessingTime: time.Since(start).Seconds(),
			Err:            "document has no embedded text layer",
		}, nil
	}

	return domain.RecognitionResult{
		Success:        true,
		Text:           recognized,
		Confidence:     0.99,
		Pages:          pages,
		ProcessingTime: time.Since(start).Seconds(),
	}, nil
}
