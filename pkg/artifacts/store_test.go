package artifacts

import (
	"bytes"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redPixel is a 1x1 PNG.
var redPixel, _ = base64.StdEncoding.DecodeString("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8DwHwAFBQIAX8jx0gAAAABJRU5ErkJggg==")

const missingHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

func TestHashBytes(t *testing.T) {
	assert.Equal(t,
		"sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashBytes(nil))
	assert.Equal(t,
		"sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		HashBytes([]byte("test")))
}

func TestParseHash(t *testing.T) {
	digest, err := ParseHash(HashBytes([]byte("test")))
	require.NoError(t, err)
	assert.Equal(t, "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", digest)

	for _, bad := range []string{
		"",
		"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		"sha256:9F86D081884C7D659A2FEAA0C55AD015A3BF4F1B2B0B822CD15D6C15B0F00A08",
		"sha256:abc",
		"sha256:zz86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		"md5:9f86d081884c7d659a2feaa0c55ad015",
		"sha256:../../../../etc/passwd",
	} {
		_, err := ParseHash(bad)
		assert.ErrorIs(t, err, ErrInvalidHash, bad)
	}
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	hash, err := s.Put(t.Context(), []byte("abc"), nil)
	require.NoError(t, err)

	data, err := s.Get(t.Context(), hash)
	require.NoError(t, err)
	data[0] = 'x'

	again, err := s.Get(t.Context(), hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

// testStoreContract runs the behaviour every Store backend must share.
func testStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("put get info", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		hash, err := s.Put(ctx, redPixel, &AssetInfo{
			MimeType: "image/png",
			Filename: "pixel.png",
			Image:    &ImageInfo{Width: 1, Height: 1},
		})
		require.NoError(t, err)
		assert.Equal(t, HashBytes(redPixel), hash)

		data, err := s.Get(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, redPixel, data)

		info, err := s.Info(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, hash, info.Hash)
		assert.Equal(t, "image/png", info.MimeType)
		assert.Equal(t, int64(len(redPixel)), info.Size)
		assert.Equal(t, "pixel.png", info.Filename)
		require.NotNil(t, info.Image)
		assert.Equal(t, 1, info.Image.Width)
		assert.Equal(t, 1, info.RefCount)
		assert.False(t, info.CreatedAt.IsZero())
		assert.True(t, info.LastAccessedAt.Equal(info.CreatedAt))
	})

	t.Run("defaults without metadata", func(t *testing.T) {
		s := newStore(t)
		hash, err := s.Put(t.Context(), []byte("plain text body"), nil)
		require.NoError(t, err)

		info, err := s.Info(t.Context(), hash)
		require.NoError(t, err)
		assert.Equal(t, "text/plain", info.MimeType)
		assert.Equal(t, int64(15), info.Size)
		assert.Equal(t, 1, info.RefCount)
	})

	t.Run("first writer wins", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		first, err := s.Put(ctx, []byte("same bytes"), &AssetInfo{Filename: "first.txt"})
		require.NoError(t, err)
		second, err := s.Put(ctx, []byte("same bytes"), &AssetInfo{Filename: "second.txt", RefCount: 7})
		require.NoError(t, err)
		assert.Equal(t, first, second)

		info, err := s.Info(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, "first.txt", info.Filename)
		assert.Equal(t, 1, info.RefCount)
	})

	t.Run("missing", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		_, err := s.Get(ctx, missingHash)
		require.ErrorIs(t, err, ErrNotFound)
		_, err = s.Info(ctx, missingHash)
		require.ErrorIs(t, err, ErrNotFound)
		ok, err := s.Exists(ctx, missingHash)
		require.NoError(t, err)
		assert.False(t, ok)
		removed, err := s.Delete(ctx, missingHash)
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("invalid hash", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		_, err := s.Get(ctx, "sha256:nothex")
		require.ErrorIs(t, err, ErrInvalidHash)
		_, err = s.Info(ctx, "nothex")
		require.ErrorIs(t, err, ErrInvalidHash)
		_, err = s.Exists(ctx, "sha256:")
		require.ErrorIs(t, err, ErrInvalidHash)
		_, err = s.Delete(ctx, "sha1:abc")
		require.ErrorIs(t, err, ErrInvalidHash)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		hash, err := s.Put(ctx, []byte("to be removed"), nil)
		require.NoError(t, err)
		ok, err := s.Exists(ctx, hash)
		require.NoError(t, err)
		assert.True(t, ok)

		removed, err := s.Delete(ctx, hash)
		require.NoError(t, err)
		assert.True(t, removed)

		ok, err = s.Exists(ctx, hash)
		require.NoError(t, err)
		assert.False(t, ok)
		_, err = s.Get(ctx, hash)
		require.ErrorIs(t, err, ErrNotFound)
		_, err = s.Info(ctx, hash)
		require.ErrorIs(t, err, ErrNotFound)

		removed, err = s.Delete(ctx, hash)
		require.NoError(t, err)
		assert.False(t, removed)

		// A deleted hash can be stored again.
		_, err = s.Put(ctx, []byte("to be removed"), &AssetInfo{Filename: "again"})
		require.NoError(t, err)
		info, err := s.Info(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, "again", info.Filename)
	})

	t.Run("concurrent identical puts", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()
		data := bytes.Repeat([]byte("race"), 1024)

		const writers = 16
		hashes := make([]string, writers)
		errs := make([]error, writers)
		var wg sync.WaitGroup
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				hashes[i], errs[i] = s.Put(ctx, data, &AssetInfo{RefCount: i + 1})
			}()
		}
		wg.Wait()

		for i := range writers {
			require.NoError(t, errs[i])
			assert.Equal(t, HashBytes(data), hashes[i])
		}
		got, err := s.Get(ctx, hashes[0])
		require.NoError(t, err)
		assert.Equal(t, data, got)

		info, err := s.Info(ctx, hashes[0])
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), info.Size)
		assert.GreaterOrEqual(t, info.RefCount, 1)
	})
}
