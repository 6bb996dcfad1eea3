package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kgraph/internal/config"
	"github.com/OFFIS-RIT/kgraph/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	exportPrefix   = "exports"
	downloadExpiry = 15 * time.Minute
)

// ErrDisabled is returned when no bucket is configured.
var ErrDisabled = errors.New("object storage is not configured")

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Bucket stores graph exports and reads import files from one S3 bucket.
type Bucket struct {
	client objectAPI
	sign   func(ctx context.Context, key string) (string, error)
	name   string
}

// NewBucket creates a path style client for cfg. It returns ErrDisabled
// when cfg names no bucket.
func NewBucket(ctx context.Context, cfg config.S3) (*Bucket, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	presign := s3.NewPresignClient(client)

	b := &Bucket{client: client, name: cfg.Bucket}
	b.sign = func(ctx context.Context, key string) (string, error) {
		out, err := presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(cfg.Bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(downloadExpiry))
		if err != nil {
			return "", err
		}
		return out.URL, nil
	}
	return b, nil
}

// ExportKey returns a fresh object key for an export with extension ext.
func ExportKey(ext string) string {
	return fmt.Sprintf("%s/%s/%s.%s", exportPrefix, time.Now().UTC().Format("2006-01-02"), util.NewID("graph"), strings.TrimPrefix(ext, "."))
}

// Put uploads body under key.
func (b *Bucket) Put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload file to S3: %w", err)
	}
	return nil
}

// Get downloads the object stored under key.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get file from S3: %w", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}
	return buf.Bytes(), nil
}

// DownloadLink returns a presigned GET url for key.
func (b *Bucket) DownloadLink(ctx context.Context, key string) (string, error) {
	if b.sign == nil {
		return "", nil
	}
	link, err := b.sign(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to generate download link: %w", err)
	}
	return link, nil
}

// cleanKey rejects keys that are urls or climb out of the bucket root.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("empty object key")
	}
	if u, err := url.Parse(key); err == nil && u.Scheme != "" {
		return "", fmt.Errorf("object key %q must not be a url", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("object key %q must not contain ..", key)
		}
	}
	return key, nil
}
