package httpadapter

import (
	"net/http"

	"github.com/medinsight/insight-engine/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case domain.IsKind(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func rejectionReason(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrUnsupportedType):
		return "unsupported_type"
	case domain.IsKind(err, domain.ErrPayloadTooLarge):
		return "payload_too_large"
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid_input"
	case domain.IsKind(err, domain.ErrEncryption):
		return "encryption_failure"
	case domain.IsKind(err, domain.ErrStorage):
		return "storage_failure"
	default:
		return "internal"
	}
}
