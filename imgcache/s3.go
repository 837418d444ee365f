package imgcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config contains S3 cache configuration
type S3Config struct {
	Endpoint        string // Optional: custom endpoint for MinIO or DigitalOcean Spaces
	Region          string // AWS region or DO region (e.g., "us-east-1" or "sfo3")
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	UsePathStyle    bool   // Use path-style addressing (required for MinIO)
}

// S3Cache stores cached images in an S3-compatible bucket, shared across
// instances.
type S3Cache struct {
	client *s3.Client
	bucket string
}

// NewS3Cache creates an S3-backed cache.
func NewS3Cache(ctx context.Context, cfg S3Config) (*S3Cache, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("S3 region is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("S3 credentials are required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	opts = append(opts, config.WithCredentialsProvider(
		credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	))

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Opts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}

	return &S3Cache{
		client: s3.NewFromConfig(awsConfig, s3Opts),
		bucket: cfg.Bucket,
	}, nil
}

// Get reads a cached entry. Returns ErrNotFound when the key is absent.
func (s *S3Cache) Get(ctx context.Context, key string) (*Entry, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get image from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data from S3: %w", err)
	}

	contentType := ""
	if result.ContentType != nil {
		contentType = *result.ContentType
	}

	return &Entry{Data: data, ContentType: contentType}, nil
}

// Put writes an entry. The content type rides on the object metadata.
func (s *S3Cache) Put(ctx context.Context, key string, entry *Entry) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(key)),
		Body:        bytes.NewReader(entry.Data),
		ContentType: aws.String(entry.ContentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload image to S3: %w", err)
	}
	return nil
}

// objectKey shards entries the same way the filesystem backend does, keeping
// bucket listings navigable.
func objectKey(key string) string {
	shard := "00"
	if len(key) >= 2 {
		shard = key[:2]
	}
	return "images/" + shard + "/" + key
}
