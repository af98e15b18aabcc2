package securefs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/medinsight/insight-engine/internal/core/domain"
	"github.com/medinsight/insight-engine/internal/core/ports"
)

// Vault manages three filesystem namespaces: staging for plaintext
// awaiting sealing, the encrypted store for durable blobs, and scratch for
// transient plaintext that lives no longer than one processing attempt.
// Filenames carry a ULID prefix, so concurrent units never collide and
// stale files sort by age.
type Vault struct {
	stagingRoot   string
	encryptedRoot string
	scratchRoot   string
	cipher        ports.Cipher
}

func New(stagingRoot, encryptedRoot, scratchRoot string, cipher ports.Cipher) (*Vault, error) {
	for _, dir := range []string{stagingRoot, encryptedRoot, scratchRoot} {
		if dir == "" {
			return nil, fmt.Errorf("securefs: empty root path")
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("securefs: create root %s: %w", dir, err)
		}
	}
	return &Vault{
		stagingRoot:   stagingRoot,
		encryptedRoot: encryptedRoot,
		scratchRoot:   scratchRoot,
		cipher:        cipher,
	}, nil
}

// Stage writes the stream under the staging root, computing the size and a
// streaming SHA-256 digest without buffering the file in memory.
func (v *Vault) Stage(_ context.Context, data io.Reader, originalName string) (ports.StagedFile, error) {
	path := filepath.Join(v.stagingRoot, uniqueName(originalName))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return ports.StagedFile{}, domain.WrapError(domain.ErrStorage, "create staging file", err)
	}

	digest := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, digest), data)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return ports.StagedFile{}, domain.WrapError(domain.ErrStorage, "write staging file", err)
	}

	return ports.StagedFile{
		Path:   path,
		Size:   size,
		SHA256: hex.EncodeToString(digest.Sum(nil)),
	}, nil
}

// Seal encrypts the staged plaintext into the encrypted store. The staged
// file is removed only after the encrypted blob is durably written; on any
// failure it stays in place for operator inspection.
func (v *Vault) Seal(_ context.Context, stagedPath string) (string, error) {
	plain, err := os.ReadFile(stagedPath)
	if err != nil {
		return "", domain.WrapError(domain.ErrStorage, "read staged file", err)
	}

	sealed, err := v.cipher.EncryptBytes(plain)
	if err != nil {
		return "", domain.WrapError(domain.ErrEncryption, "seal staged file", err)
	}

	ref := filepath.Join(v.encryptedRoot, filepath.Base(stagedPath))
	if err := os.WriteFile(ref, sealed, 0o600); err != nil {
		_ = os.Remove(ref)
		return "", domain.WrapError(domain.ErrStorage, "write encrypted blob", err)
	}

	_ = os.Remove(stagedPath)
	return ref, nil
}

// OpenForProcessing decrypts the blob into the scratch root. The returned
// cleanup removes the scratch file and is safe to call on every exit path.
func (v *Vault) OpenForProcessing(_ context.Context, encryptedRef string) (string, func(), error) {
	sealed, err := os.ReadFile(encryptedRef)
	if err != nil {
		return "", nil, domain.WrapError(domain.ErrStorage, "read encrypted blob", err)
	}

	plain, err := v.cipher.DecryptBytes(sealed)
	if err != nil {
		return "", nil, err
	}

	path := filepath.Join(v.scratchRoot, uniqueName(filepath.Base(encryptedRef)))
	if err := os.WriteFile(path, plain, 0o600); err != nil {
		return "", nil, domain.WrapError(domain.ErrStorage, "write scratch file", err)
	}

	cleanup := func() { _ = os.Remove(path) }
	return path, cleanup, nil
}

func (v *Vault) Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return domain.WrapError(domain.ErrStorage, "delete file", err)
	}
	return nil
}

func (v *Vault) VerifyIntegrity(path, expectedSHA256 string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, domain.WrapError(domain.ErrStorage, "open file for digest", err)
	}
	defer f.Close()

	digest := sha256.New()
	if _, err := io.Copy(digest, f); err != nil {
		return false, domain.WrapError(domain.ErrStorage, "digest file", err)
	}
	return hex.EncodeToString(digest.Sum(nil)) == expectedSHA256, nil
}

// PurgeStaleTemp removes files older than maxAge from the staging and
// scratch roots. The encrypted store is never swept.
func (v *Vault) PurgeStaleTemp(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	for _, root := range []string{v.stagingRoot, v.scratchRoot} {
		entries, err := os.ReadDir(root)
		if err != nil {
			return deleted, domain.WrapError(domain.ErrStorage, "list temp root", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(root, entry.Name())); err == nil {
					deleted++
				}
			}
		}
	}
	return deleted, nil
}

func (v *Vault) Stats() (ports.VaultStats, error) {
	var stats ports.VaultStats
	for _, root := range []string{v.stagingRoot, v.encryptedRoot, v.scratchRoot} {
		entries, err := os.ReadDir(root)
		if err != nil {
			return ports.VaultStats{}, domain.WrapError(domain.ErrStorage, "list vault root", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			stats.Files++
			stats.TotalBytes += info.Size()
		}
	}
	return stats, nil
}

func uniqueName(originalName string) string {
	return ulid.Make().String() + "_" + sanitizeFilename(originalName)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
