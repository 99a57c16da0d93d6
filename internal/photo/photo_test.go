package photo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

var quiet = logger.New(logger.LevelOff, nil)

func TestFSStorePutExistsDelete(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewFSStore(root, quiet)
	require.NoError(t, err)

	path, err := s.Put(ctx, "recipes/abc/one.jpg", strings.NewReader("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "recipes", "abc", "one.jpg"), path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(b))

	ok, err := s.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, path))
	ok, err = s.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Delete(ctx, path), "deleting twice is fine")
	_, err = os.Stat(filepath.Join(root, "recipes", "abc"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "empty recipe dir removed")
}

func TestFSStoreRejectsEscapes(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir(), quiet)
	require.NoError(t, err)

	_, err = s.Put(ctx, "../outside.jpg", strings.NewReader("x"), "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = s.Delete(ctx, "/etc/passwd")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: "none"}, quiet)
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = Open(ctx, Config{Driver: DriverFS, Dir: t.TempDir()}, quiet)
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, s)

	s, err = Open(ctx, Config{Driver: DriverFS}, quiet)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Nil(t, s)

	_, err = Open(ctx, Config{Driver: "ftp"}, quiet)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// fakeS3 is an in-memory path-style S3 endpoint covering PUT, HEAD and
// DELETE on /<bucket>/<key>.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	body        []byte
	contentType string
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type")}
		return reply(http.StatusOK, http.Header{"ETag": {`"etag"`}}), nil
	case http.MethodHead:
		obj, ok := f.objects[key]
		if !ok {
			return reply(http.StatusNotFound, http.Header{}), nil
		}
		return reply(http.StatusOK, http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
		}), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return reply(http.StatusNoContent, http.Header{}), nil
	}
	return reply(http.StatusNotImplemented, http.Header{}), nil
}

func reply(status int, h http.Header) *http.Response {
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(bytes.NewReader(nil))}
}

func newFakeS3Store(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string]fakeObject)}
	s, err := NewS3Store(context.Background(), S3Config{
		Bucket:          "photos",
		Region:          "us-east-1",
		Endpoint:        "https://fake.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: fake},
	}, quiet)
	require.NoError(t, err)
	return s, fake
}

func TestS3StoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, fake := newFakeS3Store(t)

	path, err := s.Put(ctx, "recipes/r1/p.png", strings.NewReader("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "s3://photos/recipes/r1/p.png", path)

	fake.mu.Lock()
	obj, ok := fake.objects["recipes/r1/p.png"]
	fake.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, "image/png", obj.contentType)

	exists, err := s.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Delete(ctx, path))
	exists, err = s.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, s.Delete(ctx, path), "missing keys delete cleanly")
}

func TestS3StoreRejectsForeignPaths(t *testing.T) {
	s, _ := newFakeS3Store(t)
	err := s.Delete(context.Background(), "s3://other-bucket/x.png")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{}, quiet)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
