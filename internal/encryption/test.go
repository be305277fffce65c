package encryption

import (
	"fmt"
	"sync"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/ledger"
)

// TestKeystore holds the wallet in memory behind a plaintext passphrase
// check. It performs no encryption and exists for tests and throwaway configs.
type TestKeystore struct {
	mu         sync.Mutex
	wallet     *ledger.Wallet
	passphrase string
}

var _ ardrive.Keystore = (*TestKeystore)(nil)

// NewTestKeystore creates an empty TestKeystore.
func NewTestKeystore() *TestKeystore {
	return &TestKeystore{}
}

func (k *TestKeystore) Setup(w *ledger.Wallet, passphrase string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.wallet, k.passphrase = w, passphrase
	return nil
}

func (k *TestKeystore) Unlock(passphrase string) (*ledger.Wallet, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.wallet == nil {
		return nil, fmt.Errorf("no wallet stored")
	}
	if passphrase != k.passphrase {
		return nil, fmt.Errorf("unlocking wallet: %w", ardrive.ErrDecryption)
	}
	return k.wallet, nil
}

func (k *TestKeystore) Address() (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.wallet == nil {
		return "", fmt.Errorf("no wallet stored")
	}
	return k.wallet.Address(), nil
}

func (k *TestKeystore) IsConfigured() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.wallet != nil
}
