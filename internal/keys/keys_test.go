package keys

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"testing"

	"ardrive-go/internal/ardrive"
)

const (
	testDriveID = "6d5b3f1e-2c4a-4b8e-9f10-1a2b3c4d5e6f"
	testFileID  = "0f1e2d3c-4b5a-4968-8776-a5b4c3d2e1f0"
)

func testSecret(fill byte) ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(bytes.Repeat([]byte{fill}, ed25519.SeedSize))
}

func TestDeriveDriveKey_Deterministic(t *testing.T) {
	t.Parallel()

	k1, err := DeriveDriveKey(testSecret(1), testDriveID, "correct horse")
	if err != nil {
		t.Fatalf("DeriveDriveKey() error = %v", err)
	}
	k2, err := DeriveDriveKey(testSecret(1), testDriveID, "correct horse")
	if err != nil {
		t.Fatalf("DeriveDriveKey() error = %v", err)
	}
	if !bytes.Equal(k1.Bytes(), k2.Bytes()) {
		t.Error("DeriveDriveKey() not deterministic")
	}
	if len(k1.Bytes()) != KeySize {
		t.Errorf("key length = %d, want %d", len(k1.Bytes()), KeySize)
	}
}

func TestDeriveDriveKey_InputsMatter(t *testing.T) {
	t.Parallel()

	base, err := DeriveDriveKey(testSecret(1), testDriveID, "pw")
	if err != nil {
		t.Fatalf("DeriveDriveKey() error = %v", err)
	}

	tests := []struct {
		name       string
		secret     ed25519.PrivateKey
		driveID    string
		passphrase string
	}{
		{name: "different wallet", secret: testSecret(2), driveID: testDriveID, passphrase: "pw"},
		{name: "different drive", secret: testSecret(1), driveID: testFileID, passphrase: "pw"},
		{name: "different passphrase", secret: testSecret(1), driveID: testDriveID, passphrase: "pw2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			k, err := DeriveDriveKey(tt.secret, tt.driveID, tt.passphrase)
			if err != nil {
				t.Fatalf("DeriveDriveKey() error = %v", err)
			}
			if bytes.Equal(k.Bytes(), base.Bytes()) {
				t.Error("derived key collides with base key")
			}
		})
	}
}

func TestDeriveKeys_RejectMalformedIDs(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"", "not-a-uuid", "6d5b3f1e-2c4a-4b8e-9f10", "0"} {
		if _, err := DeriveDriveKey(testSecret(1), id, "pw"); !errors.Is(err, ardrive.ErrKeyDerivation) {
			t.Errorf("DeriveDriveKey(%q) error = %v, want ErrKeyDerivation", id, err)
		}
	}

	dk, err := DeriveDriveKey(testSecret(1), testDriveID, "pw")
	if err != nil {
		t.Fatalf("DeriveDriveKey() error = %v", err)
	}
	if _, err := DeriveFileKey(dk, "bogus"); !errors.Is(err, ardrive.ErrKeyDerivation) {
		t.Errorf("DeriveFileKey(bogus) error = %v, want ErrKeyDerivation", err)
	}
	if _, err := DeriveFileKey(nil, testFileID); !errors.Is(err, ardrive.ErrKeyDerivation) {
		t.Errorf("DeriveFileKey(nil) error = %v, want ErrKeyDerivation", err)
	}
}

func TestDeriveFileKey_Deterministic(t *testing.T) {
	t.Parallel()

	dk, err := DeriveDriveKey(testSecret(1), testDriveID, "pw")
	if err != nil {
		t.Fatalf("DeriveDriveKey() error = %v", err)
	}
	f1, err := DeriveFileKey(dk, testFileID)
	if err != nil {
		t.Fatalf("DeriveFileKey() error = %v", err)
	}
	f2, err := DeriveFileKey(dk, testFileID)
	if err != nil {
		t.Fatalf("DeriveFileKey() error = %v", err)
	}
	if !bytes.Equal(f1.Bytes(), f2.Bytes()) {
		t.Error("DeriveFileKey() not deterministic")
	}
	if bytes.Equal(f1.Bytes(), dk.Bytes()) {
		t.Error("file key equals drive key")
	}
}

func TestKeys_StringRedacts(t *testing.T) {
	t.Parallel()

	dk, _ := DriveKeyFromBytes(bytes.Repeat([]byte{0xab}, KeySize))
	fk, _ := FileKeyFromBytes(bytes.Repeat([]byte{0xcd}, KeySize))
	if dk.String() != "[redacted]" || fk.String() != "[redacted]" {
		t.Errorf("String() = %q, %q, want [redacted]", dk.String(), fk.String())
	}
}
