package loopcrypto

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	plaintext := []byte(`{"roomName":"Standup"}`)

	blob, err := EncryptBytes(key, plaintext)
	if err != nil {
		t.Fatalf("EncryptBytes: %v", err)
	}
	got, err := DecryptBytes(key, blob)
	if err != nil {
		t.Fatalf("DecryptBytes: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("DecryptBytes = %q, want %q", got, plaintext)
	}
}

func TestFreshIVPerEncryption(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	a, err := EncryptBytes(key, []byte("same plaintext"))
	if err != nil {
		t.Fatalf("EncryptBytes: %v", err)
	}
	b, err := EncryptBytes(key, []byte("same plaintext"))
	if err != nil {
		t.Fatalf("EncryptBytes: %v", err)
	}
	if a == b {
		t.Fatal("two encryptions of the same plaintext produced identical blobs")
	}
}

func TestBlobGeometry(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	plaintext := []byte("hello")
	blob, err := EncryptBytes(key, plaintext)
	if err != nil {
		t.Fatalf("EncryptBytes: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		t.Fatalf("blob is not valid base64: %v", err)
	}
	if want := IVSize + len(plaintext) + TagSize; len(raw) != want {
		t.Fatalf("blob length = %d, want %d", len(raw), want)
	}
}

func TestWrongKeyFails(t *testing.T) {
	key, _ := GenerateKey()
	other, _ := GenerateKey()
	blob, err := EncryptBytes(key, []byte("secret"))
	if err != nil {
		t.Fatalf("EncryptBytes: %v", err)
	}
	if _, err := DecryptBytes(other, blob); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("DecryptBytes with wrong key: err = %v, want %v", err, ErrDecryptionFailed)
	}
}

func TestTamperedBlobFails(t *testing.T) {
	key, _ := GenerateKey()
	blob, err := EncryptBytes(key, []byte("secret"))
	if err != nil {
		t.Fatalf("EncryptBytes: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(blob)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)
	if _, err := DecryptBytes(key, tampered); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("DecryptBytes of tampered blob: err = %v, want %v", err, ErrDecryptionFailed)
	}
}

func TestTruncatedBlob(t *testing.T) {
	key, _ := GenerateKey()
	short := base64.StdEncoding.EncodeToString(make([]byte, IVSize+TagSize-1))
	if _, err := DecryptBytes(key, short); !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("DecryptBytes of truncated blob: err = %v, want %v", err, ErrInvalidCiphertext)
	}
}

func TestBadKeySize(t *testing.T) {
	short := base64.StdEncoding.EncodeToString(make([]byte, 8))
	if _, err := EncryptBytes(short, []byte("x")); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("EncryptBytes with short key: err = %v, want %v", err, ErrInvalidKey)
	}
	if _, err := DecryptBytes(short, ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("DecryptBytes with short key: err = %v, want %v", err, ErrInvalidKey)
	}
}

func TestEmptyPlaintext(t *testing.T) {
	key, _ := GenerateKey()
	blob, err := EncryptBytes(key, nil)
	if err != nil {
		t.Fatalf("EncryptBytes: %v", err)
	}
	got, err := DecryptBytes(key, blob)
	if err != nil {
		t.Fatalf("DecryptBytes: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("DecryptBytes = %q, want empty", got)
	}
}
