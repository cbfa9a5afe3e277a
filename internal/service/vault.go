package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters. The salt is fixed so the key is deterministic
// per configured secret; a key that changes between calls would make every
// stored password unreadable.
const (
	vaultKDFIterations = 4096
	vaultKeySize       = 32 // AES-256
)

var vaultKDFSalt = []byte("datapilot-credential-vault-v1")

// Vault encrypts and decrypts stored connection passwords with AES-256-GCM.
type Vault struct {
	key []byte
}

// NewVault derives the encryption key from the configured secret.
func NewVault(secret string) (*Vault, error) {
	if len(secret) < 32 {
		return nil, errors.New("vault secret must be at least 32 characters")
	}
	key := pbkdf2.Key([]byte(secret), vaultKDFSalt, vaultKDFIterations, vaultKeySize, sha256.New)
	return &Vault{key: key}, nil
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext).
func (v *Vault) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt opens a base64 ciphertext produced by Encrypt. Any tampering or
// key mismatch fails; there is no plaintext fallback.
func (v *Vault) Decrypt(cryptoText string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(cryptoText)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
