package spool

import (
	"fmt"
	"io"
	"sync"

	"smugdups/internal/dups"
)

// spool implements dups.Spool using a pluggable spoolStore for the storage
// mechanics. Content stored more than once is reference counted so Remove
// only drops it when the last holder is done.
type spool struct {
	store   spoolStore
	maxSize int64
	refs    map[string]int
	mu      sync.Mutex
}

var _ dups.Spool = (*spool)(nil)

func newSpool(store spoolStore, maxSize int64) *spool {
	return &spool{store: store, maxSize: maxSize, refs: make(map[string]int)}
}

// Store reads r to the end and keeps its bytes until Remove.
func (s *spool) Store(r io.Reader) (string, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	checksum, size, err := s.store.StoreContent(r)
	if err != nil {
		return "", 0, fmt.Errorf("storing content: %w", err)
	}

	total, err := s.store.ContentSize()
	if err != nil {
		s.discard(checksum)
		return "", 0, fmt.Errorf("getting current size: %w", err)
	}
	if total > s.maxSize {
		s.discard(checksum)
		return "", 0, fmt.Errorf("spool full: %d bytes would exceed max size of %d bytes", total, s.maxSize)
	}

	s.refs[checksum]++
	return checksum, size, nil
}

// Open returns a reader for spooled content.
func (s *spool) Open(checksum string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs[checksum] == 0 {
		return nil, fmt.Errorf("content not spooled: %s", checksum)
	}
	return s.store.OpenContent(checksum)
}

// Remove releases one reference to spooled content.
func (s *spool) Remove(checksum string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release(checksum)
}

// Size returns the total size of spooled content in bytes.
func (s *spool) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ContentSize()
}

func (s *spool) release(checksum string) {
	if s.refs[checksum] > 1 {
		s.refs[checksum]--
		return
	}
	delete(s.refs, checksum)
	s.store.RemoveContent(checksum)
}

// discard drops content that was stored but never handed out.
func (s *spool) discard(checksum string) {
	if s.refs[checksum] == 0 {
		s.store.RemoveContent(checksum)
	}
}
