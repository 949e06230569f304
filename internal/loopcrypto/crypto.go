// Package loopcrypto is the symmetric helper for room context data:
// AES-128-GCM with a fresh 96-bit IV per encryption and base64 framing
// of IV‖ciphertext‖tag.
package loopcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	KeySize = 16 // 128-bit key
	IVSize  = 12 // 96-bit IV, the GCM standard nonce size
	TagSize = 16 // 128-bit authentication tag
)

var (
	ErrInvalidKey        = errors.New("invalid key size")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// GenerateKey returns a fresh random key, base64 encoded.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// EncryptBytes seals plaintext under the base64 key and returns
// base64(IV‖ciphertext‖tag). Every call draws a fresh IV.
func EncryptBytes(keyB64 string, plaintext []byte) (string, error) {
	gcm, err := newGCM(keyB64)
	if err != nil {
		return "", err
	}
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}
	sealed := gcm.Seal(iv, iv, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptBytes opens a blob produced by EncryptBytes.
func DecryptBytes(keyB64, blobB64 string) ([]byte, error) {
	gcm, err := newGCM(keyB64)
	if err != nil {
		return nil, err
	}
	blob, err := base64.StdEncoding.DecodeString(blobB64)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(blob) < IVSize+TagSize {
		return nil, ErrInvalidCiphertext
	}
	plaintext, err := gcm.Open(nil, blob[:IVSize], blob[IVSize:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(keyB64 string) (cipher.AEAD, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("invalid key: %w", err)
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
