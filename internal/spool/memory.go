package spool

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"

	"smugdups/internal/dups"
)

// memoryStore keeps spooled content in memory. Useful for tests and for
// small batches.
type memoryStore struct {
	content map[string][]byte
}

// NewMemorySpool creates an in-memory spool holding at most maxSize bytes.
func NewMemorySpool(maxSize int64) dups.Spool {
	return newSpool(&memoryStore{content: make(map[string][]byte)}, maxSize)
}

func (m *memoryStore) StoreContent(r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	sum := md5.Sum(data)
	checksum := hex.EncodeToString(sum[:])
	if _, ok := m.content[checksum]; !ok {
		m.content[checksum] = data
	}
	return checksum, int64(len(data)), nil
}

func (m *memoryStore) RemoveContent(checksum string) {
	delete(m.content, checksum)
}

func (m *memoryStore) OpenContent(checksum string) (io.ReadCloser, error) {
	data, ok := m.content[checksum]
	if !ok {
		return nil, fmt.Errorf("content not found: %s", checksum)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) ContentSize() (int64, error) {
	var total int64
	for _, data := range m.content {
		total += int64(len(data))
	}
	return total, nil
}
