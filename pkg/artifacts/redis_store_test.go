package artifacts

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Redis tests need a live server: DECKPACK_TEST_REDIS_ADDR=localhost:6379.
func redisTestConfig(t *testing.T) RedisStoreConfig {
	t.Helper()
	addr := os.Getenv("DECKPACK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DECKPACK_TEST_REDIS_ADDR not set")
	}
	// A fresh prefix per test keeps runs independent without FLUSHDB.
	return RedisStoreConfig{Addr: addr, Prefix: "deckpack-test:" + uuid.NewString() + ":"}
}

func TestRedisStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store {
		s, err := NewRedisStore(t.Context(), redisTestConfig(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestRedisStore_KeysShareSlot(t *testing.T) {
	s := NewRedisStoreWithClient(nil, "")
	blob, meta := s.keys("abcd")
	assert.Equal(t, "deckpack:asset:{abcd}:blob", blob)
	assert.Equal(t, "deckpack:asset:{abcd}:info", meta)
}
