// Package artifacts provides content-addressed storage for deck assets.
//
// Every backend implements Store. Blobs are keyed by the SHA-256 of their
// bytes, written as "sha256:<64 lowercase hex>". The first successful Put of
// a hash stores the bytes and their AssetInfo; later Puts of the same bytes
// succeed without touching either, even when callers race. Deletion is only
// ever explicit: stores do not count references.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const hashPrefix = "sha256:"

var (
	// ErrNotFound is returned by Get and Info for hashes with no blob.
	ErrNotFound = errors.New("artifacts: asset not found")
	// ErrInvalidHash is returned for hashes not of the form sha256:<hex>.
	ErrInvalidHash = errors.New("artifacts: invalid hash format")
)

// Store defines the contract for content-addressed asset storage.
type Store interface {
	// Put stores data and returns its content hash. meta may be nil. If a
	// blob with the same hash exists, Put is a no-op that still succeeds
	// and the existing AssetInfo is kept.
	Put(ctx context.Context, data []byte, meta *AssetInfo) (string, error)
	// Get returns the bytes stored under hash.
	Get(ctx context.Context, hash string) ([]byte, error)
	// Info returns the metadata recorded by the first Put of hash.
	Info(ctx context.Context, hash string) (*AssetInfo, error)
	// Exists reports whether a blob is stored under hash.
	Exists(ctx context.Context, hash string) (bool, error)
	// Delete removes the blob and its metadata. It reports whether
	// anything was removed.
	Delete(ctx context.Context, hash string) (bool, error)
}

// AssetInfo is the metadata kept alongside each blob.
type AssetInfo struct {
	Hash     string `json:"hash"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Filename string `json:"filename,omitempty"`

	Image *ImageInfo `json:"image,omitempty"`
	Video *VideoInfo `json:"video,omitempty"`
	Audio *AudioInfo `json:"audio,omitempty"`
	Font  *FontInfo  `json:"font,omitempty"`

	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	RefCount       int       `json:"refCount"`
}

// ImageInfo describes a raster or vector image.
type ImageInfo struct {
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	HasAlpha     bool   `json:"hasAlpha,omitempty"`
	ColorProfile string `json:"colorProfile,omitempty"`
}

// VideoInfo describes a video stream. Duration is in seconds.
type VideoInfo struct {
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Codec    string  `json:"codec,omitempty"`
}

// AudioInfo describes an audio stream. Duration is in seconds.
type AudioInfo struct {
	Duration   float64 `json:"duration,omitempty"`
	Codec      string  `json:"codec,omitempty"`
	SampleRate int     `json:"sampleRate,omitempty"`
}

// FontInfo describes a font face.
type FontInfo struct {
	Family string `json:"family,omitempty"`
	Weight int    `json:"weight,omitempty"`
	Style  string `json:"style,omitempty"`
}

// HashBytes returns the content hash of data in store form.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hashPrefix + hex.EncodeToString(sum[:])
}

// ParseHash validates hash and returns its hex digest.
func ParseHash(hash string) (string, error) {
	digest, ok := strings.CutPrefix(hash, hashPrefix)
	if !ok || len(digest) != sha256.Size*2 || strings.ToLower(digest) != digest {
		return "", fmt.Errorf("%w: %s", ErrInvalidHash, hash)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidHash, hash)
	}
	return digest, nil
}

// newAssetInfo builds the record stored by the first Put of data.
// Caller-supplied fields are kept; hash and size always come from data.
func newAssetInfo(data []byte, hash string, meta *AssetInfo, now time.Time) *AssetInfo {
	info := &AssetInfo{}
	if meta != nil {
		*info = *meta
	}
	info.Hash = hash
	info.Size = int64(len(data))
	if info.MimeType == "" {
		info.MimeType = detectContentType(data)
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now
	}
	if info.LastAccessedAt.IsZero() {
		info.LastAccessedAt = info.CreatedAt
	}
	if info.RefCount == 0 {
		info.RefCount = 1
	}
	return info
}

// detectContentType sniffs at most the first 512 bytes.
func detectContentType(data []byte) string {
	if len(data) > 512 {
		data = data[:512]
	}
	ct := http.DetectContentType(data)
	mediaType, _, _ := strings.Cut(ct, ";")
	return mediaType
}
