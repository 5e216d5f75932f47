package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore is a filesystem-backed implementation of Store.
//
// Blobs live at <base>/<hex[0:2]>/<hex[2:4]>/<hex>.blob with their AssetInfo
// in a sibling <hex>.json. Both are committed with a hard link from a
// private temp file, so the first writer wins even across processes
// sharing the directory.
type FileStore struct {
	baseDir string
	tmpDir  string
	mu      sync.RWMutex
}

// NewFileStore creates a new content-addressed store at the specified directory.
func NewFileStore(baseDir string) (*FileStore, error) {
	tmpDir := filepath.Join(baseDir, ".tmp")
	//nolint:gosec // G301: 0755 is intentional for shared asset directory
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure asset dir: %w", err)
	}
	return &FileStore{baseDir: baseDir, tmpDir: tmpDir}, nil
}

func (s *FileStore) paths(digest string) (blob, meta string) {
	dir := filepath.Join(s.baseDir, digest[0:2], digest[2:4])
	return filepath.Join(dir, digest+".blob"), filepath.Join(dir, digest+".json")
}

func (s *FileStore) Put(ctx context.Context, data []byte, meta *AssetInfo) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// 1. Compute Hash
	hash := HashBytes(data)
	digest := hash[len(hashPrefix):]
	blobPath, metaPath := s.paths(digest)

	s.mu.Lock()
	defer s.mu.Unlock()

	// 2. Idempotent fast path
	if _, err := os.Stat(blobPath); err == nil {
		return hash, nil
	}

	//nolint:gosec // G301: 0755 is intentional for shared asset directory
	if err := os.MkdirAll(filepath.Dir(blobPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create shard dir: %w", err)
	}

	// 3. Commit blob; losing the race to another process is success
	won, err := s.commit(blobPath, data)
	if err != nil {
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}
	if !won {
		return hash, nil
	}

	// 4. Commit metadata
	info := newAssetInfo(data, hash, meta, time.Now().UTC())
	encoded, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to encode asset info: %w", err)
	}
	if _, err := s.commit(metaPath, encoded); err != nil {
		return "", fmt.Errorf("failed to commit asset info: %w", err)
	}
	return hash, nil
}

// commit writes data to a temp file and links it into place. It reports
// false when path already existed.
func (s *FileStore) commit(path string, data []byte) (bool, error) {
	tmp, err := os.CreateTemp(s.tmpDir, "put-*")
	if err != nil {
		return false, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *FileStore) Get(ctx context.Context, hash string) ([]byte, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return nil, err
	}
	blobPath, _ := s.paths(digest)

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(blobPath) //nolint:gosec // Hash validated as hex
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func (s *FileStore) Info(ctx context.Context, hash string) (*AssetInfo, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return nil, err
	}
	blobPath, metaPath := s.paths(digest)

	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := os.ReadFile(metaPath) //nolint:gosec // Hash validated as hex
	if err == nil {
		var info AssetInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, fmt.Errorf("corrupt asset info for %s: %w", hash, err)
		}
		return &info, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read asset info: %w", err)
	}

	// A blob without a sidecar was committed by a writer that has not
	// finished yet, or that died between the two links.
	return statInfo(hash, blobPath)
}

func statInfo(hash, blobPath string) (*AssetInfo, error) {
	st, err := os.Stat(blobPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat blob: %w", err)
	}

	head := make([]byte, 512)
	f, err := os.Open(blobPath) //nolint:gosec // Hash validated as hex
	if err != nil {
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	defer f.Close() //nolint:errcheck // best-effort close
	n, _ := f.Read(head)

	mod := st.ModTime().UTC()
	return &AssetInfo{
		Hash:           hash,
		MimeType:       detectContentType(head[:n]),
		Size:           st.Size(),
		CreatedAt:      mod,
		LastAccessedAt: mod,
		RefCount:       1,
	}, nil
}

func (s *FileStore) Exists(ctx context.Context, hash string) (bool, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return false, err
	}
	blobPath, _ := s.paths(digest)

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err = os.Stat(blobPath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	//nolint:wrapcheck // caller provides context
	return false, err
}

func (s *FileStore) Delete(ctx context.Context, hash string) (bool, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return false, err
	}
	blobPath, metaPath := s.paths(digest)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := true
	if err := os.Remove(blobPath); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("failed to delete asset: %w", err)
		}
		removed = false
	}
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return removed, fmt.Errorf("failed to delete asset info: %w", err)
	}
	s.cleanupEmptyDirs(filepath.Dir(blobPath))
	return removed, nil
}

// cleanupEmptyDirs removes now-empty shard directories up to baseDir.
func (s *FileStore) cleanupEmptyDirs(dir string) {
	for dir != s.baseDir && len(dir) > len(s.baseDir) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
