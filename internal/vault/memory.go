package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"smugdups/internal/dups"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It stores all content and metadata in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name     string
	content  map[string][]byte // checksum -> content
	metadata map[string][]byte // "account/name" -> metadata
	mu       sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:     name,
		content:  make(map[string][]byte),
		metadata: make(map[string][]byte),
	}
}

// PutContent stores content identified by its checksum.
func (m *MemoryVault) PutContent(checksum string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.content[checksum]; !ok {
		m.content[checksum] = data
	}
	return nil
}

// GetContent retrieves content by checksum.
func (m *MemoryVault) GetContent(checksum string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.content[checksum]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("content not found: %s", checksum)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// HasContent reports whether content with the checksum is stored.
func (m *MemoryVault) HasContent(checksum string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.content[checksum]
	return ok, nil
}

// PutMetadata stores a named metadata item for an account.
func (m *MemoryVault) PutMetadata(account string, name string, r io.Reader, size int64) error {
	if err := validateName(account, name); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[metadataKey(account, name)] = data
	return nil
}

// GetMetadata retrieves a named metadata item for an account.
func (m *MemoryVault) GetMetadata(account string, name string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.metadata[metadataKey(account, name)]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("metadata %q not found for account: %s", name, account)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

var _ dups.Vault = (*MemoryVault)(nil)
