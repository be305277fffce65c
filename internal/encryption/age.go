// Package encryption keeps the wallet at rest, encrypted under the user's passphrase.
package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/config"
	"ardrive-go/internal/ledger"
)

// AgeKeystore implements ardrive.Keystore with filippo.io/age.
// The wallet address is stored in plaintext; the wallet seed is encrypted with
// the passphrase using age's scrypt-based passphrase encryption.
type AgeKeystore struct {
	seedPath    string
	addressPath string
	workFactor  int // scrypt log2 work factor; 0 keeps age's default
}

var _ ardrive.Keystore = (*AgeKeystore)(nil)

// NewAgeKeystore creates an AgeKeystore from configuration.
func NewAgeKeystore(cfg config.KeystoreConfig) *AgeKeystore {
	return &AgeKeystore{seedPath: cfg.SeedPath, addressPath: cfg.AddressPath}
}

// WithWorkFactor sets the scrypt work factor used by Setup. Tests lower it.
func (k *AgeKeystore) WithWorkFactor(logN int) *AgeKeystore {
	k.workFactor = logN
	return k
}

// Setup writes the wallet address and the encrypted seed.
func (k *AgeKeystore) Setup(w *ledger.Wallet, passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase must not be empty")
	}
	for _, p := range []string{k.seedPath, k.addressPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			return fmt.Errorf("creating keystore directory: %w", err)
		}
	}

	if err := os.WriteFile(k.addressPath, []byte(w.Address()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing wallet address: %w", err)
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if k.workFactor > 0 {
		recipient.SetWorkFactor(k.workFactor)
	}

	f, err := os.OpenFile(k.seedPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating wallet file: %w", err)
	}
	defer f.Close()

	enc, err := age.Encrypt(f, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(enc, ledger.B64Encode(w.Seed())+"\n"); err != nil {
		return fmt.Errorf("writing encrypted wallet: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted wallet: %w", err)
	}
	return nil
}

// Unlock decrypts the wallet seed. A wrong passphrase yields ardrive.ErrDecryption.
func (k *AgeKeystore) Unlock(passphrase string) (*ledger.Wallet, error) {
	data, err := os.ReadFile(k.seedPath)
	if err != nil {
		return nil, fmt.Errorf("reading wallet file: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	dec, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) || errors.Is(err, age.ErrIncorrectIdentity) {
			return nil, fmt.Errorf("unlocking wallet: %w", ardrive.ErrDecryption)
		}
		return nil, fmt.Errorf("decrypting wallet: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted wallet: %w", err)
	}

	seed, err := ledger.B64Decode(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parsing wallet seed: %w", err)
	}
	w, err := ledger.NewWallet(seed)
	if err != nil {
		return nil, fmt.Errorf("loading wallet: %w", err)
	}
	if addr, err := k.Address(); err == nil && addr != w.Address() {
		return nil, fmt.Errorf("wallet address %s does not match stored address %s", w.Address(), addr)
	}
	return w, nil
}

// Address returns the stored wallet address without unlocking.
func (k *AgeKeystore) Address() (string, error) {
	data, err := os.ReadFile(k.addressPath)
	if err != nil {
		return "", fmt.Errorf("reading wallet address: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// IsConfigured returns true if both keystore files exist.
func (k *AgeKeystore) IsConfigured() bool {
	for _, p := range []string{k.seedPath, k.addressPath} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
