package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
)

// Wallet is an ed25519 signing identity. Signatures are deterministic, which
// makes key derivation from signatures reproducible across clients.
type Wallet struct {
	key ed25519.PrivateKey
}

// GenerateWallet creates a new wallet from entropy read from r.
// A nil reader uses crypto/rand.
func GenerateWallet(r io.Reader) (*Wallet, error) {
	if r == nil {
		r = rand.Reader
	}
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("reading wallet seed: %w", err)
	}
	return NewWallet(seed)
}

// NewWallet restores a wallet from its 32-byte seed.
func NewWallet(seed []byte) (*Wallet, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("wallet seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Wallet{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// Seed returns a copy of the wallet's seed.
func (w *Wallet) Seed() []byte {
	return append([]byte(nil), w.key.Seed()...)
}

// PrivateKey returns the wallet's signing key.
func (w *Wallet) PrivateKey() ed25519.PrivateKey {
	return w.key
}

// Owner returns the base64url public key, as carried in transaction owners.
func (w *Wallet) Owner() string {
	return B64Encode(w.key.Public().(ed25519.PublicKey))
}

// Address returns the wallet address: base64url(SHA-256(public key)).
func (w *Wallet) Address() string {
	return OwnerAddress(w.key.Public().(ed25519.PublicKey))
}

// Sign signs msg with the wallet key.
func (w *Wallet) Sign(msg []byte) []byte {
	return ed25519.Sign(w.key, msg)
}

// OwnerAddress derives the address of a raw public key.
func OwnerAddress(pub []byte) string {
	sum := sha256.Sum256(pub)
	return B64Encode(sum[:])
}

// verifySignature checks sig against the base64url-encoded owner key.
func verifySignature(owner string, msg, sig []byte) error {
	pub, err := B64Decode(owner)
	if err != nil {
		return fmt.Errorf("decoding owner: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("owner key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return fmt.Errorf("signature does not verify")
	}
	return nil
}

// idFromSignature derives a transaction or item ID: base64url(SHA-256(signature)).
func idFromSignature(sig []byte) string {
	sum := sha256.Sum256(sig)
	return B64Encode(sum[:])
}
