package ardrive

import "ardrive-go/internal/ledger"

// Keystore holds the wallet seed at rest, encrypted under the user's passphrase.
type Keystore interface {
	// Setup stores w, encrypted with passphrase. The owner address is kept in
	// plaintext so read-only commands do not need the passphrase.
	Setup(w *ledger.Wallet, passphrase string) error

	// Unlock decrypts the wallet. It returns an error if the passphrase is wrong.
	Unlock(passphrase string) (*ledger.Wallet, error)

	// Address returns the stored wallet address without unlocking.
	Address() (string, error)

	// IsConfigured returns true if a wallet has been stored.
	IsConfigured() bool
}
