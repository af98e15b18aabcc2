package domain

import (
	"errors"
	"fmt"
)

var (
	// Client input errors, surfaced directly at upload time.
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrInvalidInput    = errors.New("invalid input")

	// Infrastructure errors at upload time. The upload aborts and no
	// document record is created.
	ErrStorage    = errors.New("storage failure")
	ErrEncryption = errors.New("encryption failure")

	// ErrDecryption signals tampered or foreign ciphertext.
	ErrDecryption = errors.New("decryption failure")

	ErrDocumentNotFound = errors.New("document not found")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
