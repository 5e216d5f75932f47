package artifacts

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It is the default for tests and for
// one-shot conversions that never outlive the process.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

type memoryBlob struct {
	data []byte
	info AssetInfo
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]memoryBlob)}
}

func (s *MemoryStore) Put(ctx context.Context, data []byte, meta *AssetInfo) (string, error) {
	hash := HashBytes(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[hash]; ok {
		return hash, nil
	}
	info := newAssetInfo(data, hash, meta, time.Now().UTC())
	s.blobs[hash] = memoryBlob{data: bytes.Clone(data), info: *info}
	return hash, nil
}

func (s *MemoryStore) Get(ctx context.Context, hash string) ([]byte, error) {
	if _, err := ParseHash(hash); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(blob.data), nil
}

func (s *MemoryStore) Info(ctx context.Context, hash string) (*AssetInfo, error) {
	if _, err := ParseHash(hash); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs[hash]
	if !ok {
		return nil, ErrNotFound
	}
	info := blob.info
	return &info, nil
}

func (s *MemoryStore) Exists(ctx context.Context, hash string) (bool, error) {
	if _, err := ParseHash(hash); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.blobs[hash]
	return ok, nil
}

func (s *MemoryStore) Delete(ctx context.Context, hash string) (bool, error) {
	if _, err := ParseHash(hash); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[hash]; !ok {
		return false, nil
	}
	delete(s.blobs, hash)
	return true, nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
