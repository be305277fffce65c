package ardrive

import "io"

// Vault is a content-addressed blob store for transaction bodies, keyed by txID.
// It holds bodies of transactions awaiting upload (so an interrupted upload can
// resume with byte-identical data) and caches bodies fetched from the gateway.
// Named metadata items hold local-store snapshots per login.
// All operations stream through io.Reader/io.Writer.
type Vault interface {
	// PutContent stores the body of txID. Storing the same txID twice is safe.
	// size is the number of bytes that will be read from r.
	PutContent(txID string, r io.Reader, size int64) error

	// GetContent writes the body of txID to w. It returns an error wrapping
	// ErrNotFound when the body is not stored.
	GetContent(txID string, w io.Writer) error

	// HasContent reports whether the body of txID is stored.
	HasContent(txID string) (bool, error)

	// DeleteContent removes the body of txID. Deleting an absent body is not an error.
	DeleteContent(txID string) error

	// PutMetadata stores a named metadata item for a login.
	// version is stored alongside the metadata for consistency checks.
	PutMetadata(login string, name string, r io.Reader, size int64, version int64) error

	// GetMetadata writes a named metadata item for a login to w.
	GetMetadata(login string, name string, w io.Writer) error

	// GetMetadataVersion returns the metadata version for a named item.
	// Returns 0 if nothing has been stored.
	GetMetadataVersion(login string, name string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
