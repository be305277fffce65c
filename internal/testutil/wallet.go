package testutil

import (
	"bytes"
	"testing"

	"ardrive-go/internal/ledger"
)

// NewTestWallet returns a deterministic wallet whose seed is 32 copies of fill.
func NewTestWallet(t *testing.T, fill byte) *ledger.Wallet {
	t.Helper()
	w, err := ledger.NewWallet(bytes.Repeat([]byte{fill}, 32))
	if err != nil {
		t.Fatalf("NewWallet() error = %v", err)
	}
	return w
}
