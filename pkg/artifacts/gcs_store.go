//go:build gcp

package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// assetInfoMetadataKey holds the JSON AssetInfo in the object's custom metadata.
const assetInfoMetadataKey = "deckpack-asset-info"

// GCSStore implements Store using Google Cloud Storage. Metadata travels
// with the blob as custom object metadata, so a single conditional write
// commits both.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string // Optional key prefix (e.g., "assets/")
}

// NewGCSStore creates a new GCS-backed asset store.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs store requires a bucket")
	}
	// Create GCS client (uses ADC by default)
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *GCSStore) object(digest string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + digest + ".blob")
}

func (s *GCSStore) Put(ctx context.Context, data []byte, meta *AssetInfo) (string, error) {
	hash := HashBytes(data)
	obj := s.object(hash[len(hashPrefix):])

	// 1. Check if object already exists (idempotent)
	if _, err := obj.Attrs(ctx); err == nil {
		return hash, nil
	} else if !errors.Is(err, storage.ErrObjectNotExist) {
		return "", fmt.Errorf("gcs attrs error: %w", err)
	}

	info := newAssetInfo(data, hash, meta, time.Now().UTC())
	encoded, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to encode asset info: %w", err)
	}

	// 2. Upload object only if nobody else has
	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = info.MimeType
	w.Metadata = map[string]string{assetInfoMetadataKey: string(encoded)}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return hash, nil
		}
		return "", fmt.Errorf("gcs close failed: %w", err)
	}
	return hash, nil
}

func (s *GCSStore) Get(ctx context.Context, hash string) ([]byte, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return nil, err
	}

	reader, err := s.object(digest).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gcs get failed for %s: %w", hash, err)
	}
	defer func() { _ = reader.Close() }()

	//nolint:wrapcheck // caller provides context
	return io.ReadAll(reader)
}

func (s *GCSStore) Info(ctx context.Context, hash string) (*AssetInfo, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return nil, err
	}

	attrs, err := s.object(digest).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gcs attrs error: %w", err)
	}

	if raw, ok := attrs.Metadata[assetInfoMetadataKey]; ok {
		var info AssetInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			return nil, fmt.Errorf("corrupt asset info for %s: %w", hash, err)
		}
		return &info, nil
	}
	return &AssetInfo{
		Hash:           hash,
		MimeType:       attrs.ContentType,
		Size:           attrs.Size,
		CreatedAt:      attrs.Created.UTC(),
		LastAccessedAt: attrs.Created.UTC(),
		RefCount:       1,
	}, nil
}

func (s *GCSStore) Exists(ctx context.Context, hash string) (bool, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return false, err
	}

	_, err = s.object(digest).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs attrs error: %w", err)
	}
	return true, nil
}

func (s *GCSStore) Delete(ctx context.Context, hash string) (bool, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return false, err
	}

	err = s.object(digest).Delete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs delete failed for %s: %w", hash, err)
	}
	return true, nil
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
