package ap2

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	sealSaltLen   = 16
	sealNonceLen  = 12
	sealTagLen    = 16
	sealKeyLen    = 32 // AES-256
	pbkdf2Rounds  = 600_000
)

// SecureStorageSeal encrypts plaintext under a key derived from passphrase
// via PBKDF2-HMAC-SHA256 (600,000 iterations, matching OWASP's current
// minimum for PBKDF2-SHA256) and AES-256-GCM. The wire format is
// salt(16) || nonce(12) || tag(16) || ciphertext, all concatenated,
// so SecureStorageOpen needs nothing besides the passphrase to reverse it.
func SecureStorageSeal(passphrase string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, sealSaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Rounds, sealKeyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	nonce := make([]byte, sealNonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ct := sealed[:len(sealed)-sealTagLen]
	tag := sealed[len(sealed)-sealTagLen:]

	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return out, nil
}

// SecureStorageOpen reverses SecureStorageSeal. It returns ErrSealOpenFailed
// on any authentication failure, never leaking whether the passphrase or
// the ciphertext was at fault.
func SecureStorageOpen(passphrase string, sealed []byte) ([]byte, error) {
	if len(sealed) < sealSaltLen+sealNonceLen+sealTagLen {
		return nil, ErrSealOpenFailed(fmt.Errorf("sealed value too short"))
	}
	salt := sealed[:sealSaltLen]
	nonce := sealed[sealSaltLen : sealSaltLen+sealNonceLen]
	tag := sealed[sealSaltLen+sealNonceLen : sealSaltLen+sealNonceLen+sealTagLen]
	ciphertext := append(append([]byte{}, sealed[sealSaltLen+sealNonceLen+sealTagLen:]...), tag...)

	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Rounds, sealKeyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrSealOpenFailed(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrSealOpenFailed(err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrSealOpenFailed(err)
	}
	return plaintext, nil
}
