package store

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore writes named blobs into a bucket.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

// s3API is the subset of *s3.Client used by S3.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 implements ObjectStore on Amazon S3 or an S3-compatible service.
type S3 struct {
	client s3API
}

var _ ObjectStore = (*S3)(nil)

// NewS3 creates an S3 store. If endpoint is non-empty, path-style addressing
// is enabled (for MinIO, LocalStack and similar).
func NewS3(cfg aws.Config, endpoint string, opts ...func(*s3.Options)) *S3 {
	if endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return &S3{client: s3.NewFromConfig(cfg, opts...)}
}

// PutObject implements ObjectStore.
func (s *S3) PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 put object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Object is a blob held by Memory.
type Object struct {
	Bucket      string
	Key         string
	Body        []byte
	ContentType string
}

// Memory is an in-process ObjectStore. Puts are recorded in order.
type Memory struct {
	mu      sync.Mutex
	objects []Object
	err     error
}

var _ ObjectStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

// FailWith makes every following PutObject return err. Pass nil to recover.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// PutObject implements ObjectStore.
func (m *Memory) PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.objects = append(m.objects, Object{
		Bucket:      bucket,
		Key:         key,
		Body:        append([]byte(nil), body...),
		ContentType: contentType,
	})
	return nil
}

// Objects returns a copy of every stored object in write order.
func (m *Memory) Objects() []Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Object(nil), m.objects...)
}

// Get returns the object stored under bucket/key.
func (m *Memory) Get(bucket, key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.objects {
		if o.Bucket == bucket && o.Key == key {
			return o, true
		}
	}
	return Object{}, false
}
