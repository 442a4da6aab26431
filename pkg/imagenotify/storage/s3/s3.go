package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/image-notify/internal/awsconfig"
	"github.com/tendant/image-notify/pkg/imagenotify"
)

const backendName = "s3"

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)
	PageSize        int32  // Keys requested per ListObjectsV2 page (default: service maximum)

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	CreateBucketIfNotExist bool // Create bucket if it doesn't exist
}

// API is the subset of *s3.Client used by the backend
type API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	s3.HeadObjectAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Backend is an S3 implementation of the imagenotify.BlobStore interface
type Backend struct {
	client   API
	uploader *manager.Uploader
	bucket   string
	config   Config
}

// New creates a new S3 storage backend
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	awsCfg, err := awsconfig.Load(ctx, awsconfig.Options{
		Region:          config.Region,
		AccessKeyID:     config.AccessKeyID,
		SecretAccessKey: config.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)
	backend := NewWithClient(client, config)

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(ctx, client); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

// NewWithClient creates a backend around an existing client
func NewWithClient(client API, config Config) *Backend {
	return &Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   config.Bucket,
		config:   config,
	}
}

func (b *Backend) createBucketIfNotExists(ctx context.Context, client *s3.Client) error {
	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}
	if !isNotFound(err) && !strings.Contains(err.Error(), "NoSuchBucket") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	}
	if b.config.Region != "" && b.config.Region != awsconfig.DefaultRegion {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	_, err = client.CreateBucket(ctx, createInput)
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return err
	}
	return nil
}

// Put uploads data under key
func (b *Backend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if b.config.EnableSSE {
		switch b.config.SSEAlgorithm {
		case "AES256":
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		case "aws:kms":
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			if b.config.SSEKMSKeyID != "" {
				input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
			}
		}
	}

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return &imagenotify.StorageError{Backend: backendName, Key: key, Op: "put", Err: err}
	}
	return nil
}

// Get downloads the object stored under key
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, b.wrap("get", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, &imagenotify.StorageError{Backend: backendName, Key: key, Op: "get", Err: err}
	}
	return data, nil
}

// Delete removes key. S3 reports success for keys that do not exist.
func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return b.wrap("delete", key, err)
	}
	return nil
}

// Stat reads size and last-modified time with HeadObject
func (b *Backend) Stat(ctx context.Context, key string) (*imagenotify.ObjectInfo, error) {
	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, b.wrap("stat", key, err)
	}

	return &imagenotify.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(result.ContentLength),
		LastModified: aws.ToTime(result.LastModified),
		ContentType:  aws.ToString(result.ContentType),
	}, nil
}

// ListAll pages through ListObjectsV2, following continuation tokens until
// the bucket listing is no longer truncated.
func (b *Backend) ListAll(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var continuationToken *string

		for {
			input := &s3.ListObjectsV2Input{
				Bucket:            aws.String(b.bucket),
				ContinuationToken: continuationToken,
			}
			if b.config.PageSize > 0 {
				input.MaxKeys = aws.Int32(b.config.PageSize)
			}

			output, err := b.client.ListObjectsV2(ctx, input)
			if err != nil {
				yield("", b.wrap("list", "", err))
				return
			}

			for _, obj := range output.Contents {
				if !yield(aws.ToString(obj.Key), nil) {
					return
				}
			}

			if !aws.ToBool(output.IsTruncated) || output.NextContinuationToken == nil {
				return
			}
			continuationToken = output.NextContinuationToken
		}
	}
}

// PublicURLBase returns the virtual-hosted URL prefix of the bucket, or
// endpoint/bucket for custom endpoints.
func (b *Backend) PublicURLBase() string {
	if b.config.Endpoint != "" {
		return strings.TrimRight(b.config.Endpoint, "/") + "/" + b.bucket
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com", b.bucket)
}

func (b *Backend) wrap(op, key string, err error) error {
	if isNotFound(err) {
		err = fmt.Errorf("%w: %w", imagenotify.ErrObjectNotFound, err)
	}
	return &imagenotify.StorageError{Backend: backendName, Key: key, Op: op, Err: err}
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
