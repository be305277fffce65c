package encryption

import (
	"fmt"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/config"
)

// NewKeystoreFromConfig creates a Keystore based on the configuration type.
func NewKeystoreFromConfig(cfg config.KeystoreConfig) (ardrive.Keystore, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeKeystore(cfg), nil
	case "test":
		return NewTestKeystore(), nil
	default:
		return nil, fmt.Errorf("unknown keystore type: %q", cfg.Type)
	}
}
