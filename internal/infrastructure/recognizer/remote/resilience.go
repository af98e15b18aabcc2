package remote

import (
	"context"
	"errors"

	"github.com/medinsight/insight-engine/internal/infrastructure/resilience"
)

// transientError marks failures worth retrying: transport faults and
// engine-side 5xx responses. Everything else (4xx, malformed payloads)
// is deterministic and retried never.
type transientError struct {
	err error
}

func (e transientError) Error() string { return e.err.Error() }

func (e transientError) Unwrap() error { return e.err }

func classifyHTTPError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var transient transientError
	if errors.As(err, &transient) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
