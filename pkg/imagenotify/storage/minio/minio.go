package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tendant/image-notify/pkg/imagenotify"
)

const backendName = "minio"

// Config options for the MinIO backend
type Config struct {
	Endpoint        string // host:port of the MinIO server, without scheme
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	UseSSL          bool

	CreateBucketIfNotExist bool
}

// Validate checks the required fields
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("minio endpoint must not include a scheme: %s", c.Endpoint)
	}
	if c.Bucket == "" {
		return errors.New("bucket name is required")
	}
	return nil
}

// Backend is a MinIO implementation of the imagenotify.BlobStore interface
type Backend struct {
	client *minio.Client
	bucket string
	config Config
}

// New creates a new MinIO storage backend
func New(ctx context.Context, config Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client init error: %w", err)
	}

	backend := &Backend{
		client: client,
		bucket: config.Bucket,
		config: config,
	}

	if config.CreateBucketIfNotExist {
		if err := backend.ensureBucket(ctx); err != nil {
			return nil, err
		}
	}

	return backend, nil
}

func (b *Backend) ensureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("error checking bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: b.config.Region}); err != nil {
		return fmt.Errorf("error creating bucket: %w", err)
	}
	return nil
}

// Put uploads data under key
func (b *Backend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return b.wrap("put", key, err)
	}
	return nil
}

// Get downloads the object stored under key
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, b.wrap("get", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, b.wrap("get", key, err)
	}
	return data, nil
}

// Delete removes key; MinIO reports success for absent keys
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return b.wrap("delete", key, err)
	}
	return nil
}

// Stat reads size and last-modified time
func (b *Backend) Stat(ctx context.Context, key string) (*imagenotify.ObjectInfo, error) {
	info, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, b.wrap("stat", key, err)
	}
	return &imagenotify.ObjectInfo{
		Key:          key,
		Size:         info.Size,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
	}, nil
}

// ListAll yields every key. minio-go follows continuation tokens itself and
// streams objects over a channel.
func (b *Backend) ListAll(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Recursive: true}) {
			if obj.Err != nil {
				yield("", b.wrap("list", "", obj.Err))
				return
			}
			if !yield(obj.Key, nil) {
				return
			}
		}
	}
}

// PublicURLBase returns the path-style URL prefix of the bucket
func (b *Backend) PublicURLBase() string {
	scheme := "http"
	if b.config.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, b.config.Endpoint, b.bucket)
}

func (b *Backend) wrap(op, key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		err = fmt.Errorf("%w: %w", imagenotify.ErrObjectNotFound, err)
	}
	return &imagenotify.StorageError{Backend: backendName, Key: key, Op: op, Err: err}
}
