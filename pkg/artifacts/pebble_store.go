package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/sethwebster/presentations-sub001/pkg/codec"
)

var (
	pebbleBlobPrefix = []byte("blob/")
	pebbleInfoPrefix = []byte("info/")
)

// PebbleStore implements Store on an embedded Pebble LSM. Blob and
// CBOR-encoded AssetInfo are committed in one synced batch.
type PebbleStore struct {
	db *pebble.DB
	mu sync.Mutex // serialises check-then-write in Put and Delete
}

// OpenPebbleStore opens (or creates) a Pebble database at dir. opts may be
// nil; tests pass an in-memory vfs through it.
func OpenPebbleStore(dir string, opts *pebble.Options) (*PebbleStore, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func pebbleKey(prefix []byte, digest string) []byte {
	return append(bytes.Clone(prefix), digest...)
}

func (s *PebbleStore) Put(ctx context.Context, data []byte, meta *AssetInfo) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	hash := HashBytes(data)
	digest := hash[len(hashPrefix):]

	s.mu.Lock()
	defer s.mu.Unlock()

	if ok, err := s.has(pebbleKey(pebbleBlobPrefix, digest)); err != nil {
		return "", err
	} else if ok {
		return hash, nil
	}

	info := newAssetInfo(data, hash, meta, time.Now().UTC())
	encoded, err := codec.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to encode asset info: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close() //nolint:errcheck // batch is committed or discarded
	if err := batch.Set(pebbleKey(pebbleBlobPrefix, digest), data, nil); err != nil {
		return "", fmt.Errorf("pebble set failed: %w", err)
	}
	if err := batch.Set(pebbleKey(pebbleInfoPrefix, digest), encoded, nil); err != nil {
		return "", fmt.Errorf("pebble set failed: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return "", fmt.Errorf("pebble commit failed: %w", err)
	}
	return hash, nil
}

func (s *PebbleStore) Get(ctx context.Context, hash string) ([]byte, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return nil, err
	}
	return s.read(pebbleKey(pebbleBlobPrefix, digest))
}

func (s *PebbleStore) Info(ctx context.Context, hash string) (*AssetInfo, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return nil, err
	}
	raw, err := s.read(pebbleKey(pebbleInfoPrefix, digest))
	if err != nil {
		return nil, err
	}
	var info AssetInfo
	if err := codec.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("corrupt asset info for %s: %w", hash, err)
	}
	return &info, nil
}

func (s *PebbleStore) Exists(ctx context.Context, hash string) (bool, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return false, err
	}
	return s.has(pebbleKey(pebbleBlobPrefix, digest))
}

func (s *PebbleStore) Delete(ctx context.Context, hash string) (bool, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return false, err
	}
	blobKey := pebbleKey(pebbleBlobPrefix, digest)

	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.has(blobKey)
	if err != nil || !ok {
		return false, err
	}

	batch := s.db.NewBatch()
	defer batch.Close() //nolint:errcheck // batch is committed or discarded
	if err := batch.Delete(blobKey, nil); err != nil {
		return false, fmt.Errorf("pebble delete failed: %w", err)
	}
	if err := batch.Delete(pebbleKey(pebbleInfoPrefix, digest), nil); err != nil {
		return false, fmt.Errorf("pebble delete failed: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return false, fmt.Errorf("pebble commit failed: %w", err)
	}
	return true, nil
}

// Close flushes and closes the database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func (s *PebbleStore) read(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("pebble get failed: %w", err)
	}
	defer closer.Close() //nolint:errcheck // releases the read handle
	return bytes.Clone(value), nil
}

func (s *PebbleStore) has(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("pebble get failed: %w", err)
	}
	_ = closer.Close()
	return true, nil
}
