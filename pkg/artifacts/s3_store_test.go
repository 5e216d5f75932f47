package artifacts

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeBucket = "deck-assets"

// fakeS3 is a path-style S3 endpoint holding objects in memory. It honours
// If-None-Match: * the way S3 does. While conflicts is positive, conditional
// writes of absent keys get 409 ConditionalRequestConflict; with
// conflictLands set the competing write commits the same body.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	puts    int

	conflicts     int
	conflictLands bool
}

type fakeObject struct {
	body        []byte
	contentType string
	modified    time.Time
}

func newFakeS3(t *testing.T) (*fakeS3, string) {
	t.Helper()
	f := &fakeS3{objects: make(map[string]fakeObject)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key, ok := strings.CutPrefix(r.URL.Path, "/"+fakeBucket+"/")
	if !ok {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	obj, exists := f.objects[key]
	switch r.Method {
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeS3Error(w, http.StatusBadRequest, "IncompleteBody")
			return
		}
		if r.Header.Get("If-None-Match") == "*" && !exists && f.conflicts > 0 {
			f.conflicts--
			if f.conflictLands {
				f.objects[key] = fakeObject{body: body, contentType: r.Header.Get("Content-Type"), modified: time.Now().UTC()}
			}
			writeS3Error(w, http.StatusConflict, "ConditionalRequestConflict")
			return
		}
		if r.Header.Get("If-None-Match") == "*" && exists {
			writeS3Error(w, http.StatusPreconditionFailed, "PreconditionFailed")
			return
		}
		f.puts++
		f.objects[key] = fakeObject{body: body, contentType: r.Header.Get("Content-Type"), modified: time.Now().UTC()}
		w.Header().Set("ETag", `"`+strconv.Itoa(f.puts)+`"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		if !exists {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("Content-Type", obj.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.body)))
		w.Header().Set("Last-Modified", obj.modified.Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(obj.body)
		}
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeS3Error(w, http.StatusMethodNotAllowed, "MethodNotAllowed")
	}
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, code)
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.objects))
	for k := range f.objects {
		out = append(out, k)
	}
	return out
}

func newTestS3Store(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	fake, endpoint := newFakeS3(t)
	s, err := NewS3Store(t.Context(), S3StoreConfig{
		Bucket:   fakeBucket,
		Region:   "us-east-1",
		Endpoint: endpoint,
		Prefix:   "decks/",
	})
	require.NoError(t, err)
	s.conflictDelay = time.Millisecond
	return s, fake
}

func TestS3Store(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store {
		s, _ := newTestS3Store(t)
		return s
	})
}

func TestS3Store_KeyLayout(t *testing.T) {
	s, fake := newTestS3Store(t)

	_, err := s.Put(t.Context(), []byte("test"), nil)
	require.NoError(t, err)

	digest := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	assert.ElementsMatch(t, []string{"decks/" + digest + ".blob", "decks/" + digest + ".json"}, fake.keys())
}

func TestS3Store_InfoWithoutSidecar(t *testing.T) {
	s, fake := newTestS3Store(t)

	hash, err := s.Put(t.Context(), redPixel, &AssetInfo{MimeType: "image/png"})
	require.NoError(t, err)
	digest, err := ParseHash(hash)
	require.NoError(t, err)

	fake.mu.Lock()
	delete(fake.objects, "decks/"+digest+".json")
	fake.mu.Unlock()

	info, err := s.Info(t.Context(), hash)
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.MimeType)
	assert.Equal(t, int64(len(redPixel)), info.Size)
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(t.Context(), S3StoreConfig{Region: "us-east-1"})
	require.Error(t, err)
}

func TestS3ErrorClassification(t *testing.T) {
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &smithy.GenericAPIError{Code: "NotFound"})))
	assert.False(t, isNotFound(errors.New("connection reset")))

	assert.True(t, isPreconditionFailed(&smithy.GenericAPIError{Code: "PreconditionFailed"}))
	assert.False(t, isPreconditionFailed(&smithy.GenericAPIError{Code: "ConditionalRequestConflict"}))
	assert.True(t, isConditionalConflict(&smithy.GenericAPIError{Code: "ConditionalRequestConflict"}))
	assert.False(t, isConditionalConflict(&smithy.GenericAPIError{Code: "PreconditionFailed"}))
	assert.False(t, isPreconditionFailed(&smithy.GenericAPIError{Code: "AccessDenied"}))
}

func TestS3Store_ConflictRetriesUntilStored(t *testing.T) {
	s, fake := newTestS3Store(t)
	fake.conflicts = 2

	hash, err := s.Put(t.Context(), redPixel, &AssetInfo{MimeType: "image/png"})
	require.NoError(t, err)

	got, err := s.Get(t.Context(), hash)
	require.NoError(t, err)
	assert.Equal(t, redPixel, got)
	info, err := s.Info(t.Context(), hash)
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.MimeType)
}

func TestS3Store_ConflictResolvedByOtherWriter(t *testing.T) {
	s, fake := newTestS3Store(t)
	fake.conflicts = 1
	fake.conflictLands = true

	hash, err := s.Put(t.Context(), []byte("test"), nil)
	require.NoError(t, err)

	got, err := s.Get(t.Context(), hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("test"), got)
}

func TestS3Store_PersistentConflictIsAnError(t *testing.T) {
	s, fake := newTestS3Store(t)
	fake.conflicts = 1000

	hash, err := s.Put(t.Context(), []byte("test"), nil)
	require.Error(t, err)
	assert.Empty(t, hash)
	assert.Contains(t, err.Error(), "ConditionalRequestConflict")

	ok, err := s.Exists(t.Context(), HashBytes([]byte("test")))
	require.NoError(t, err)
	assert.False(t, ok)
}
