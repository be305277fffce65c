package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"ardrive-go/internal/ardrive"
)

// MemoryVault keeps transaction bodies and metadata in memory.
// It is safe for concurrent use and is the default vault in tests.
type MemoryVault struct {
	name     string
	mu       sync.RWMutex
	content  map[string][]byte // txID -> body
	metadata map[string]versioned
}

type versioned struct {
	data    []byte
	version int64
}

// NewMemoryVault creates an empty in-memory vault.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:     name,
		content:  make(map[string][]byte),
		metadata: make(map[string]versioned),
	}
}

func metadataKey(login, name string) string {
	return login + "/" + name
}

func readExactly(r io.Reader, size int64) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	return data, nil
}

func (m *MemoryVault) PutContent(txID string, r io.Reader, size int64) error {
	data, err := readExactly(r, size)
	if err != nil {
		return fmt.Errorf("storing %s: %w", txID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[txID] = data
	return nil
}

func (m *MemoryVault) GetContent(txID string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.content[txID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("content %s: %w", txID, ardrive.ErrNotFound)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing content %s: %w", txID, err)
	}
	return nil
}

func (m *MemoryVault) HasContent(txID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.content[txID]
	return ok, nil
}

func (m *MemoryVault) DeleteContent(txID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.content, txID)
	return nil
}

func (m *MemoryVault) PutMetadata(login, name string, r io.Reader, size int64, version int64) error {
	data, err := readExactly(r, size)
	if err != nil {
		return fmt.Errorf("storing metadata %q: %w", name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[metadataKey(login, name)] = versioned{data: data, version: version}
	return nil
}

func (m *MemoryVault) GetMetadata(login, name string, w io.Writer) error {
	m.mu.RLock()
	item, ok := m.metadata[metadataKey(login, name)]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("metadata %q for %s: %w", name, login, ardrive.ErrNotFound)
	}
	if _, err := io.Copy(w, bytes.NewReader(item.data)); err != nil {
		return fmt.Errorf("writing metadata %q: %w", name, err)
	}
	return nil
}

func (m *MemoryVault) GetMetadataVersion(login, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata[metadataKey(login, name)].version, nil
}

// ValidateSetup always succeeds for the in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

var _ ardrive.Vault = (*MemoryVault)(nil)
