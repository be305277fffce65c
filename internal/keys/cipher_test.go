package keys

import (
	"bytes"
	"errors"
	"testing"

	"ardrive-go/internal/ardrive"
)

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x11}, KeySize)

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "json", input: []byte(`{"name":"Docs"}`)},
		{name: "empty", input: []byte{}},
		{name: "binary", input: []byte{0x00, 0xff, 0x01, 0xfe}},
		{name: "large", input: bytes.Repeat([]byte("abcdef"), 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ct, iv, err := Seal(key, tt.input, nil)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if len(tt.input) > 0 && bytes.Contains(ct, tt.input) {
				t.Error("ciphertext contains plaintext")
			}
			pt, err := Open(key, iv, ct)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(pt, tt.input) {
				t.Errorf("Open() = %q, want %q", pt, tt.input)
			}
		})
	}
}

func TestSeal_FreshNonces(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x11}, KeySize)
	_, iv1, err := Seal(key, []byte("same"), nil)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	_, iv2, err := Seal(key, []byte("same"), nil)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if iv1 == iv2 {
		t.Error("two Seal() calls reused a nonce")
	}
}

func TestOpen_WrongKeyIsDecryptionError(t *testing.T) {
	t.Parallel()

	ct, iv, err := Seal(bytes.Repeat([]byte{0x11}, KeySize), []byte("secret"), nil)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	_, err = Open(bytes.Repeat([]byte{0x22}, KeySize), iv, ct)
	if !errors.Is(err, ardrive.ErrDecryption) {
		t.Errorf("Open() error = %v, want ErrDecryption", err)
	}
	if errors.Is(err, ardrive.ErrMalformedPayload) {
		t.Error("wrong key reported as malformed payload")
	}
}

func TestOpen_MalformedInput(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x11}, KeySize)
	ct, iv, err := Seal(key, []byte("secret"), nil)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	tests := []struct {
		name string
		iv   string
		ct   []byte
	}{
		{name: "iv not base64", iv: "!!!", ct: ct},
		{name: "iv wrong length", iv: "AAAA", ct: ct},
		{name: "truncated ciphertext", iv: iv, ct: ct[:4]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Open(key, tt.iv, tt.ct)
			if !errors.Is(err, ardrive.ErrMalformedPayload) {
				t.Errorf("Open() error = %v, want ErrMalformedPayload", err)
			}
		})
	}
}
