// Package secrets encrypts stored credentials and derives the deterministic
// search hash used to look up API keys without persisting plaintext.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// Algorithm is stored alongside every ciphertext so future rotations can
// tell formats apart.
const Algorithm = "aes-256-gcm"

var errCiphertextTooShort = errors.New("secrets: ciphertext too short")

// Vault encrypts and decrypts secrets under a process-wide master secret.
type Vault struct {
	master  []byte // 32-byte encryption root
	hmacKey []byte // separate root for search hashes
}

// NewVault derives the vault's key material from the master secret.
func NewVault(masterSecret string) (*Vault, error) {
	if masterSecret == "" {
		return nil, errors.New("secrets: empty master secret")
	}
	enc := sha256.Sum256([]byte("enc:" + masterSecret))
	mac := sha256.Sum256([]byte("mac:" + masterSecret))
	return &Vault{master: enc[:], hmacKey: mac[:]}, nil
}

// Encrypt seals plaintext under a fresh random salt. Returns base64
// ciphertext (nonce prepended) and the base64 salt to store with it.
func (v *Vault) Encrypt(plaintext string) (ciphertext, salt string, err error) {
	rawSalt := make([]byte, 16)
	if _, err := rand.Read(rawSalt); err != nil {
		return "", "", fmt.Errorf("secrets: salt: %w", err)
	}

	gcm, err := v.aead(rawSalt)
	if err != nil {
		return "", "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", "", fmt.Errorf("secrets: nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed),
		base64.StdEncoding.EncodeToString(rawSalt), nil
}

// Decrypt opens a ciphertext produced by Encrypt with the same salt.
func (v *Vault) Decrypt(ciphertext, salt string) (string, error) {
	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("secrets: decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("secrets: decode ciphertext: %w", err)
	}

	gcm, err := v.aead(rawSalt)
	if err != nil {
		return "", err
	}
	if len(sealed) < gcm.NonceSize() {
		return "", errCiphertextTooShort
	}

	nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("secrets: open: %w", err)
	}
	return string(plain), nil
}

// SearchHash returns the deterministic lookup hash for a raw credential.
// HMAC keyed by the master secret, so the hash is useless without it.
func (v *Vault) SearchHash(raw string) string {
	mac := hmac.New(sha256.New, v.hmacKey)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// aead builds the AES-GCM cipher for one salt. The per-secret key is
// sha256(master || salt) so leaking one derived key exposes one row only.
func (v *Vault) aead(salt []byte) (cipher.AEAD, error) {
	h := sha256.New()
	h.Write(v.master)
	h.Write(salt)
	block, err := aes.NewCipher(h.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("secrets: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: gcm: %w", err)
	}
	return gcm, nil
}

// GenerateAPIKey returns a fresh raw API key with the given prefix.
func GenerateAPIKey(prefix string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("secrets: generate key: %w", err)
	}
	return prefix + base64.RawURLEncoding.EncodeToString(raw), nil
}
