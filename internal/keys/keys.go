// Package keys derives the drive and file key hierarchy and wraps AES-256-GCM.
//
// A drive key is derived from the wallet's deterministic ed25519 signature over
// the drive ID, stretched with HKDF-SHA256 using the passphrase as info. A file
// key is derived from its drive key and the file (or folder) ID. Given the same
// wallet, drive ID and passphrase, any client re-derives the same keys.
package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"ardrive-go/internal/ardrive"
)

// KeySize is the length of every derived key in bytes (AES-256).
const KeySize = 32

var drivePrefix = []byte("drive")

// DriveKey encrypts drive and folder metadata and is the root of file keys.
type DriveKey struct {
	b [KeySize]byte
}

// FileKey encrypts a single file's metadata and data.
type FileKey struct {
	b [KeySize]byte
}

// Bytes returns the raw key. Callers must not log or persist it.
func (k *DriveKey) Bytes() []byte { return k.b[:] }

func (k *DriveKey) String() string { return "[redacted]" }

// Bytes returns the raw key. Callers must not log or persist it.
func (k *FileKey) Bytes() []byte { return k.b[:] }

func (k *FileKey) String() string { return "[redacted]" }

// DriveKeyFromBytes wraps raw key material, e.g. one received in a sharing link.
func DriveKeyFromBytes(b []byte) (*DriveKey, error) {
	if len(b) != KeySize {
		return nil, fmt.Errorf("drive key must be %d bytes, got %d: %w", KeySize, len(b), ardrive.ErrKeyDerivation)
	}
	k := &DriveKey{}
	copy(k.b[:], b)
	return k, nil
}

// FileKeyFromBytes wraps raw key material, e.g. one received in a sharing link.
func FileKeyFromBytes(b []byte) (*FileKey, error) {
	if len(b) != KeySize {
		return nil, fmt.Errorf("file key must be %d bytes, got %d: %w", KeySize, len(b), ardrive.ErrKeyDerivation)
	}
	k := &FileKey{}
	copy(k.b[:], b)
	return k, nil
}

// DeriveDriveKey derives the key for driveID from the wallet secret and passphrase.
func DeriveDriveKey(secret ed25519.PrivateKey, driveID, passphrase string) (*DriveKey, error) {
	if len(secret) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("wallet secret must be %d bytes: %w", ed25519.PrivateKeySize, ardrive.ErrKeyDerivation)
	}
	id, err := parseID(driveID)
	if err != nil {
		return nil, err
	}
	sig := ed25519.Sign(secret, append(append([]byte{}, drivePrefix...), id[:]...))

	k := &DriveKey{}
	if err := expand(sig, []byte(passphrase), k.b[:]); err != nil {
		return nil, err
	}
	return k, nil
}

// DeriveFileKey derives the key for a file or folder ID under driveKey.
func DeriveFileKey(driveKey *DriveKey, id string) (*FileKey, error) {
	if driveKey == nil {
		return nil, fmt.Errorf("nil drive key: %w", ardrive.ErrKeyDerivation)
	}
	parsed, err := parseID(id)
	if err != nil {
		return nil, err
	}
	k := &FileKey{}
	if err := expand(driveKey.b[:], parsed[:], k.b[:]); err != nil {
		return nil, err
	}
	return k, nil
}

func parseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("identifier %q is not a UUID: %w", id, ardrive.ErrKeyDerivation)
	}
	return parsed, nil
}

func expand(ikm, info, out []byte) error {
	r := hkdf.New(sha256.New, ikm, nil, info)
	if _, err := io.ReadFull(r, out); err != nil {
		return fmt.Errorf("expanding key: %w", ardrive.ErrKeyDerivation)
	}
	return nil
}
