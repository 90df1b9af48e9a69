package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/makepost/corenote/internal/models"
)

// S3Config holds the settings for an S3-compatible bucket.
type S3Config struct {
	// Endpoint is the S3 endpoint URL. Leave empty to use AWS S3.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// Prefix is prepended to every object key, e.g. "notes/".
	Prefix string
	// UsePathStyle is required by most self-hosted S3 implementations.
	UsePathStyle bool
}

// S3 implements Provider on top of an S3 bucket. Directories are implicit
// in object keys, so there is nothing to prune after a delete.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 creates an S3 provider from configuration.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3FromClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3FromClient wraps an existing S3 client.
func NewS3FromClient(client *s3.Client, bucket, prefix string) *S3 {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3) objectKey(n models.Note) string {
	return s.prefix + n.Key()
}

// List pages through the bucket and fetches every version object.
func (s *S3) List(ctx context.Context) ([]models.Note, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var out []models.Note
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if !IsVersionFile(path.Base(key)) {
				continue
			}
			dir, createdAt, ok := models.ParseKey(key)
			if !ok {
				continue
			}
			value, err := s.read(ctx, aws.ToString(obj.Key))
			if err != nil {
				return nil, err
			}
			out = append(out, models.Note{CreatedAt: createdAt, Dir: dir, Value: value})
		}
	}
	return out, nil
}

func (s *S3) read(ctx context.Context, key string) (string, error) {
	res, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("storage: get object %q: %w", key, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("storage: read object %q: %w", key, err)
	}
	return string(data), nil
}

// Write uploads the version as a text object.
func (s *S3) Write(ctx context.Context, n models.Note) error {
	key := s.objectKey(n)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(n.Value)),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("storage: put object %q: %w", key, err)
	}
	return nil
}

// Delete removes the version object. S3 deletes are idempotent.
func (s *S3) Delete(ctx context.Context, n models.Note) error {
	key := s.objectKey(n)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("storage: delete object %q: %w", key, err)
	}
	return nil
}
