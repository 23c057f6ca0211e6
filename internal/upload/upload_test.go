package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	u, err := New(Config{Backend: "http", URL: "http://localhost:9/upload"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPClient{}, u)

	u, err = New(Config{URL: "   "})
	require.NoError(t, err)
	assert.IsType(t, Disabled{}, u)

	u, err = New(Config{Backend: "NONE", URL: "http://x"})
	require.NoError(t, err)
	assert.IsType(t, Disabled{}, u)

	_, err = New(Config{Backend: "ftp"})
	assert.Error(t, err)

	_, err = New(Config{Backend: "s3"})
	assert.Error(t, err, "bucket is required")
}

func TestDisabled(t *testing.T) {
	id, err := Disabled{}.Store(context.Background(), Object{})
	assert.Empty(t, id)
	assert.ErrorIs(t, err, ErrDisabled)
}

type fakeBucket struct {
	exists    bool
	makeCalls int
	existsErr error
	putErr    error
	keys      []string
	types     []string
	data      [][]byte
}

func (f *fakeBucket) BucketExists(context.Context, string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeBucket) MakeBucket(context.Context, string, minio.MakeBucketOptions) error {
	f.makeCalls++
	f.exists = true
	return nil
}

func (f *fakeBucket) PutObject(_ context.Context, _, key string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	b, _ := io.ReadAll(r)
	f.keys = append(f.keys, key)
	f.types = append(f.types, opts.ContentType)
	f.data = append(f.data, b)
	return minio.UploadInfo{Key: key}, nil
}

func TestS3Store_Store(t *testing.T) {
	fb := &fakeBucket{}
	s := newS3Store(fb, "scans", "/incoming/")

	id1, err := s.Store(context.Background(), Object{Data: []byte("a"), Filename: "Label.PNG", ContentType: "image/png"})
	require.NoError(t, err)
	id2, err := s.Store(context.Background(), Object{Data: []byte("b")})
	require.NoError(t, err)

	assert.Equal(t, 1, fb.makeCalls)
	assert.True(t, strings.HasPrefix(id1, "incoming/"))
	assert.True(t, strings.HasSuffix(id1, ".png"))
	assert.True(t, strings.HasSuffix(id2, ".bin"))
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, []string{"image/png", "application/octet-stream"}, fb.types)
	assert.True(t, bytes.Equal([]byte("a"), fb.data[0]))
	assert.Equal(t, "scans", s.Bucket())
}

func TestS3Store_Errors(t *testing.T) {
	s := newS3Store(&fakeBucket{existsErr: errors.New("dial")}, "b", "")
	_, err := s.Store(context.Background(), Object{})
	assert.ErrorContains(t, err, "check bucket existence")

	s = newS3Store(&fakeBucket{exists: true, putErr: errors.New("denied")}, "b", "")
	_, err = s.Store(context.Background(), Object{})
	assert.ErrorContains(t, err, "put object")
}
