package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectPutter is the subset of the minio client S3Store needs.
type objectPutter interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3Store writes objects to an S3 compatible bucket. The returned id is the
// object key.
type S3Store struct {
	client objectPutter
	bucket string
	prefix string

	mu      sync.Mutex
	ensured bool
}

// NewS3Store creates a store backed by minio-go.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newS3Store(mc, cfg.Bucket, cfg.Prefix), nil
}

func newS3Store(client objectPutter, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Bucket returns the target bucket name.
func (s *S3Store) Bucket() string { return s.bucket }

// Store puts obj under a fresh key.
func (s *S3Store) Store(ctx context.Context, obj Object) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	key := s.objectKey(obj.filename())
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(obj.Data), int64(len(obj.Data)),
		minio.PutObjectOptions{ContentType: obj.contentType()})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}

func (s *S3Store) objectKey(filename string) string {
	return path.Join(s.prefix, uuid.NewString()+strings.ToLower(path.Ext(filename)))
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			exists, checkErr := s.client.BucketExists(ctx, s.bucket)
			if checkErr != nil || !exists {
				return fmt.Errorf("create bucket %s: %w", s.bucket, err)
			}
		}
	}
	s.ensured = true
	return nil
}
