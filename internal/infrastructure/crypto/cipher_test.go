package crypto

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/medinsight/insight-engine/internal/core/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := New(testSecret)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestEncryptDecryptBytesRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, plain := range [][]byte{
		[]byte("patient record"),
		{},
		bytes.Repeat([]byte{0x7f}, 4096),
	} {
		sealed, err := c.EncryptBytes(plain)
		if err != nil {
			t.Fatalf("EncryptBytes() error = %v", err)
		}
		if bytes.Contains(sealed, plain) && len(plain) > 0 {
			t.Fatalf("ciphertext contains plaintext")
		}
		opened, err := c.DecryptBytes(sealed)
		if err != nil {
			t.Fatalf("DecryptBytes() error = %v", err)
		}
		if !bytes.Equal(opened, plain) {
			t.Fatalf("round trip mismatch: got %q want %q", opened, plain)
		}
	}
}

func TestDecryptBytesDetectsTampering(t *testing.T) {
	c := newTestCipher(t)

	sealed, err := c.EncryptBytes([]byte("Patient: John Doe"))
	if err != nil {
		t.Fatalf("EncryptBytes() error = %v", err)
	}

	for i := range sealed {
		corrupted := append([]byte(nil), sealed...)
		corrupted[i] ^= 0x01
		if _, err := c.DecryptBytes(corrupted); err == nil {
			t.Fatalf("expected decryption failure for corrupted byte %d", i)
		} else if !domain.IsKind(err, domain.ErrDecryption) {
			t.Fatalf("expected ErrDecryption, got %v", err)
		}
	}
}

func TestDecryptBytesRejectsForeignCiphertext(t *testing.T) {
	c := newTestCipher(t)
	other, err := New("a completely different secret key material")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sealed, err := other.EncryptBytes([]byte("foreign"))
	if err != nil {
		t.Fatalf("EncryptBytes() error = %v", err)
	}
	if _, err := c.DecryptBytes(sealed); !domain.IsKind(err, domain.ErrDecryption) {
		t.Fatalf("expected ErrDecryption for foreign ciphertext, got %v", err)
	}
	if _, err := c.DecryptBytes([]byte("short")); !domain.IsKind(err, domain.ErrDecryption) {
		t.Fatalf("expected ErrDecryption for truncated blob, got %v", err)
	}
}

func TestEncryptFieldRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, text := range []string{"MRN-001234", "José Álvarez", "x"} {
		token, err := c.EncryptField(text)
		if err != nil {
			t.Fatalf("EncryptField() error = %v", err)
		}
		if token == text {
			t.Fatalf("token equals plaintext")
		}
		got, err := c.DecryptField(token)
		if err != nil {
			t.Fatalf("DecryptField() error = %v", err)
		}
		if got != text {
			t.Fatalf("field round trip: got %q want %q", got, text)
		}
	}
}

func TestEncryptFieldEmptyMapsToEmptyToken(t *testing.T) {
	c := newTestCipher(t)

	token, err := c.EncryptField("")
	if err != nil || token != "" {
		t.Fatalf("EncryptField(\"\") = %q, %v; want empty, nil", token, err)
	}
	text, err := c.DecryptField("")
	if err != nil || text != "" {
		t.Fatalf("DecryptField(\"\") = %q, %v; want empty, nil", text, err)
	}
}

func TestKeyNormalizationIsDeterministic(t *testing.T) {
	// Off-length secrets are derived, not rejected, and two ciphers from
	// the same secret must interoperate.
	first, err := New("short secret")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	second, err := New("short secret")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	token, err := first.EncryptField("cross-instance")
	if err != nil {
		t.Fatalf("EncryptField() error = %v", err)
	}
	got, err := second.DecryptField(token)
	if err != nil {
		t.Fatalf("DecryptField() error = %v", err)
	}
	if got != "cross-instance" {
		t.Fatalf("derived keys differ across instances")
	}
}

func TestNewAcceptsBase64Key(t *testing.T) {
	encoded := base64.URLEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32))
	if len(encoded) != 44 {
		t.Fatalf("fixture key length = %d, want 44", len(encoded))
	}
	if _, err := New(encoded); err != nil {
		t.Fatalf("New() error = %v", err)
	}
}

func TestHashForMatchingIsStableAndSalted(t *testing.T) {
	c := newTestCipher(t)

	hash1, salt1, err := c.HashForMatching("patient-42", nil)
	if err != nil {
		t.Fatalf("HashForMatching() error = %v", err)
	}
	if hash1 == "" || salt1 == "" {
		t.Fatalf("expected non-empty hash and salt")
	}

	rawSalt, err := base64.URLEncoding.DecodeString(salt1)
	if err != nil {
		t.Fatalf("decode salt: %v", err)
	}
	hash2, salt2, err := c.HashForMatching("patient-42", rawSalt)
	if err != nil {
		t.Fatalf("HashForMatching() error = %v", err)
	}
	if hash2 != hash1 || salt2 != salt1 {
		t.Fatalf("same input and salt must reproduce the same hash")
	}

	hash3, _, err := c.HashForMatching("patient-43", rawSalt)
	if err != nil {
		t.Fatalf("HashForMatching() error = %v", err)
	}
	if hash3 == hash1 {
		t.Fatalf("different inputs must not collide under the same salt")
	}
}
