package encryption

import (
	"errors"
	"testing"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/config"
)

func TestTestKeystore(t *testing.T) {
	t.Parallel()
	k := NewTestKeystore()
	if k.IsConfigured() {
		t.Error("IsConfigured() = true before Setup")
	}

	w := testWallet(t)
	if err := k.Setup(w, "pw"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if got, err := k.Unlock("pw"); err != nil || got != w {
		t.Errorf("Unlock() = %v, %v", got, err)
	}
	if _, err := k.Unlock("nope"); !errors.Is(err, ardrive.ErrDecryption) {
		t.Errorf("Unlock(wrong) error = %v, want ErrDecryption", err)
	}
	if addr, _ := k.Address(); addr != w.Address() {
		t.Errorf("Address() = %q, want %q", addr, w.Address())
	}
}

func TestNewKeystoreFromConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		typ     string
		wantErr bool
	}{
		{typ: ""},
		{typ: "age"},
		{typ: "test"},
		{typ: "vault", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			k, err := NewKeystoreFromConfig(config.KeystoreConfig{Type: tt.typ})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewKeystoreFromConfig(%q) error = %v, wantErr %v", tt.typ, err, tt.wantErr)
			}
			if !tt.wantErr && k == nil {
				t.Errorf("NewKeystoreFromConfig(%q) returned nil", tt.typ)
			}
		})
	}
}
