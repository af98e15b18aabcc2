package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/medinsight/insight-engine/internal/core/domain"
)

// Version is stamped on every document record so future key or format
// rotations can tell blobs apart.
const Version = 1

const (
	keySize       = 32
	saltSize      = 16
	kdfIterations = 100_000
)

// keyDerivationSalt pins the derivation for secrets that are not already a
// well-formed key, so the same secret always yields the same key.
var keyDerivationSalt = []byte("medinsight-cipher-v1")

// Cipher is the AES-256-GCM encryption boundary. It holds nothing but the
// loaded key and is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New loads key material once. A 44-character urlsafe-base64 secret is
// decoded to its 32 raw bytes; an exact 32-byte secret is used as-is; any
// other length is normalized through PBKDF2-SHA256 rather than rejected.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, fmt.Errorf("cipher: empty key material")
	}
	key, err := normalizeKey(secret)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: init aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher: init gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func normalizeKey(secret string) ([]byte, error) {
	raw := []byte(secret)
	if len(raw) == 44 {
		decoded, err := base64.URLEncoding.DecodeString(secret)
		if err == nil && len(decoded) == keySize {
			return decoded, nil
		}
	}
	if len(raw) == keySize {
		return raw, nil
	}
	return pbkdf2.Key(raw, keyDerivationSalt, kdfIterations, keySize, sha256.New), nil
}

// EncryptBytes seals plain under a fresh nonce. Output layout is
// nonce || ciphertext+tag.
func (c *Cipher) EncryptBytes(plain []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, domain.WrapError(domain.ErrEncryption, "generate nonce", err)
	}
	return c.aead.Seal(nonce, nonce, plain, nil), nil
}

// DecryptBytes opens a blob produced by EncryptBytes. Corrupted or foreign
// ciphertext fails with ErrDecryption, never silently returns garbage.
func (c *Cipher) DecryptBytes(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < c.aead.NonceSize() {
		return nil, domain.WrapError(domain.ErrDecryption, "open ciphertext", fmt.Errorf("blob shorter than nonce"))
	}
	nonce, sealed := ciphertext[:c.aead.NonceSize()], ciphertext[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDecryption, "open ciphertext", err)
	}
	return plain, nil
}

// EncryptField produces a urlsafe-base64 token for one structured field.
// Empty input maps to an empty token.
func (c *Cipher) EncryptField(text string) (string, error) {
	if text == "" {
		return "", nil
	}
	sealed, err := c.EncryptBytes([]byte(text))
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) DecryptField(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	sealed, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", domain.WrapError(domain.ErrDecryption, "decode field token", err)
	}
	plain, err := c.DecryptBytes(sealed)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// HashForMatching derives a one-way salted hash for de-identified lookups.
// The same input and salt always yield the same hash; a nil salt generates
// a fresh random one.
func (c *Cipher) HashForMatching(text string, salt []byte) (string, string, error) {
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return "", "", fmt.Errorf("generate salt: %w", err)
		}
	}
	derived := pbkdf2.Key([]byte(text), salt, kdfIterations, keySize, sha256.New)
	return base64.URLEncoding.EncodeToString(derived), base64.URLEncoding.EncodeToString(salt), nil
}
