package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Store implements Store using AWS S3 or an S3-compatible service.
// Each asset is two objects: <prefix><hex>.blob and <prefix><hex>.json.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string // Optional key prefix (e.g., "assets/")

	conflictDelay time.Duration // first wait after a 409; doubles per attempt
}

// conflictRetries bounds how often Put re-attempts a conditional write that
// S3 answered with 409 ConditionalRequestConflict.
const conflictRetries = 5

// S3StoreConfig holds configuration for S3Store.
type S3StoreConfig struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // Optional custom endpoint (for MinIO, LocalStack, etc.)
	Prefix   string `yaml:"prefix"`   // Optional key prefix
}

// NewS3Store creates a new S3-backed asset store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 store requires a bucket")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
			// Most S3-compatible servers reject aws-chunked trailing checksums.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg, clientOpts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,

		conflictDelay: 100 * time.Millisecond,
	}, nil
}

func (s *S3Store) keys(digest string) (blob, meta string) {
	return s.prefix + digest + ".blob", s.prefix + digest + ".json"
}

// Put uploads data with If-None-Match: * so that concurrent writers of the
// same hash cannot replace each other's object or metadata.
func (s *S3Store) Put(ctx context.Context, data []byte, meta *AssetInfo) (string, error) {
	hash := HashBytes(data)
	blobKey, metaKey := s.keys(hash[len(hashPrefix):])

	// 1. Check if object already exists (idempotent)
	if ok, err := s.head(ctx, blobKey); err != nil {
		return "", err
	} else if ok {
		return hash, nil
	}

	info := newAssetInfo(data, hash, meta, time.Now().UTC())

	// 2. Upload blob
	if err := s.putIfAbsent(ctx, blobKey, data, info.MimeType); err != nil {
		return "", err
	}

	// 3. Upload metadata
	encoded, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to encode asset info: %w", err)
	}
	if err := s.putIfAbsent(ctx, metaKey, encoded, "application/json"); err != nil {
		return "", err
	}
	return hash, nil
}

// putIfAbsent writes key with If-None-Match: *. A 412 means another writer
// committed the key first. A 409 means a concurrent conditional write of the
// key is still in flight and may yet fail, so the object is only trusted once
// a HEAD sees it; otherwise the write is retried.
func (s *S3Store) putIfAbsent(ctx context.Context, key string, body []byte, contentType string) error {
	delay := s.conflictDelay
	for attempt := 1; ; attempt++ {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String(contentType),
			IfNoneMatch: aws.String("*"),
		})
		switch {
		case err == nil, isPreconditionFailed(err):
			return nil
		case !isConditionalConflict(err):
			return fmt.Errorf("s3 put failed for %s: %w", key, err)
		case attempt > conflictRetries:
			return fmt.Errorf("s3 put failed for %s after %d conflicting attempts: %w", key, attempt, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2

		if ok, err := s.head(ctx, key); err != nil {
			return err
		} else if ok {
			return nil
		}
	}
}

func (s *S3Store) Get(ctx context.Context, hash string) ([]byte, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return nil, err
	}
	blobKey, _ := s.keys(digest)
	return s.read(ctx, blobKey)
}

func (s *S3Store) Info(ctx context.Context, hash string) (*AssetInfo, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return nil, err
	}
	blobKey, metaKey := s.keys(digest)

	raw, err := s.read(ctx, metaKey)
	if err == nil {
		var info AssetInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, fmt.Errorf("corrupt asset info for %s: %w", hash, err)
		}
		return &info, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// Blob committed but metadata not (yet) written.
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(blobKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 head failed for %s: %w", hash, err)
	}
	info := &AssetInfo{
		Hash:     hash,
		MimeType: aws.ToString(out.ContentType),
		Size:     aws.ToInt64(out.ContentLength),
		RefCount: 1,
	}
	if out.LastModified != nil {
		info.CreatedAt = out.LastModified.UTC()
		info.LastAccessedAt = info.CreatedAt
	}
	return info, nil
}

func (s *S3Store) Exists(ctx context.Context, hash string) (bool, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return false, err
	}
	blobKey, _ := s.keys(digest)
	return s.head(ctx, blobKey)
}

func (s *S3Store) Delete(ctx context.Context, hash string) (bool, error) {
	digest, err := ParseHash(hash)
	if err != nil {
		return false, err
	}
	blobKey, metaKey := s.keys(digest)

	existed, err := s.head(ctx, blobKey)
	if err != nil {
		return false, err
	}
	for _, key := range []string{blobKey, metaKey} {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil && !isNotFound(err) {
			return false, fmt.Errorf("s3 delete failed for %s: %w", key, err)
		}
	}
	return existed, nil
}

func (s *S3Store) head(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("s3 head failed for %s: %w", key, err)
}

func (s *S3Store) read(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 get failed for %s: %w", key, err)
	}
	defer func() { _ = result.Body.Close() }()

	//nolint:wrapcheck // caller provides context
	return io.ReadAll(result.Body)
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// isPreconditionFailed matches the 412 S3 returns when a conditional write
// lost to an object that already exists.
func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed"
}

// isConditionalConflict matches the 409 S3 returns while another conditional
// write of the same key is in progress.
func isConditionalConflict(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalRequestConflict"
}
