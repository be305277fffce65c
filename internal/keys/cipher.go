package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"ardrive-go/internal/ardrive"
)

// CipherName is the algorithm identifier recorded in the Cipher tag.
const CipherName = "AES256-GCM"

// NonceSize is the GCM nonce length in bytes.
const NonceSize = 12

// Seal encrypts plaintext under key with a fresh nonce read from nonces
// (crypto/rand when nil). It returns the ciphertext and the base64 nonce.
func Seal(key []byte, plaintext []byte, nonces io.Reader) ([]byte, string, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, "", err
	}
	if nonces == nil {
		nonces = rand.Reader
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(nonces, nonce); err != nil {
		return nil, "", fmt.Errorf("generating nonce: %w", err)
	}
	return aead.Seal(nil, nonce, plaintext, nil), base64.StdEncoding.EncodeToString(nonce), nil
}

// Open decrypts ciphertext sealed under key with the base64 nonce iv.
// A wrong key yields ErrDecryption; a malformed nonce or truncated
// ciphertext yields ErrMalformedPayload.
func Open(key []byte, iv string, ciphertext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil || len(nonce) != NonceSize {
		return nil, fmt.Errorf("cipher IV %q: %w", iv, ardrive.ErrMalformedPayload)
	}
	if len(ciphertext) < aead.Overhead() {
		return nil, fmt.Errorf("ciphertext of %d bytes is shorter than the auth tag: %w", len(ciphertext), ardrive.ErrMalformedPayload)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Join(ardrive.ErrDecryption, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return aead, nil
}
