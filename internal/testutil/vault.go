package testutil

import (
	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() ardrive.Vault {
	return vault.NewMemoryVault("test-vault")
}
