package cloudflare

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/quarrylane/lamina/platform/go/tenant"
)

// R2Config captures what is needed to reach an R2 bucket. R2 speaks the S3
// API, so access is via a scoped key pair rather than the account API token.
type R2Config struct {
	AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"R2_SECRET_ACCESS_KEY"`
	Bucket          string `env:"R2_BUCKET"`
}

// R2Store is a pass-through file store over an R2 bucket, namespacing all
// objects under a per-tenant prefix.
type R2Store struct {
	client *s3.Client
	bucket string
}

// NewR2Store builds an S3 client pointed at the account's R2 endpoint.
func NewR2Store(ctx context.Context, cfg R2Config) (*R2Store, error) {
	if strings.TrimSpace(cfg.AccountID) == "" {
		return nil, fmt.Errorf("%w: account id", ErrMissingCredentials)
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("%w: r2 access key pair", ErrMissingCredentials)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("r2 bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load r2 aws config: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &R2Store{client: client, bucket: cfg.Bucket}, nil
}

// ResolveObjectKey combines the tenant prefix and a tenant-relative logical key.
func ResolveObjectKey(space tenant.Space, logicalKey string) (string, error) {
	key := strings.TrimPrefix(strings.TrimSpace(logicalKey), "/")
	if key == "" {
		return "", fmt.Errorf("logical key is required")
	}
	if space.TenantID == "" {
		return "", fmt.Errorf("tenant space is missing a tenant id")
	}
	return space.ObjectPrefix() + key, nil
}

// Put uploads a tenant-scoped object.
func (s *R2Store) Put(ctx context.Context, space tenant.Space, logicalKey string, body io.Reader, contentType string) error {
	key, err := ResolveObjectKey(space, logicalKey)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("r2 put %s: %w", key, err)
	}
	return nil
}

// Get downloads a tenant-scoped object; the caller owns closing the reader.
func (s *R2Store) Get(ctx context.Context, space tenant.Space, logicalKey string) (io.ReadCloser, error) {
	key, err := ResolveObjectKey(space, logicalKey)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("r2 get %s: %w", key, err)
	}
	return out.Body, nil
}

// Presign returns a time-limited GET URL for a tenant-scoped object, so
// clients can download directly from the bucket.
func (s *R2Store) Presign(ctx context.Context, space tenant.Space, logicalKey string, expires time.Duration) (string, error) {
	key, err := ResolveObjectKey(space, logicalKey)
	if err != nil {
		return "", err
	}

	presigner := s3.NewPresignClient(s.client)
	out, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("r2 presign %s: %w", key, err)
	}
	return out.URL, nil
}

// Delete removes a tenant-scoped object.
func (s *R2Store) Delete(ctx context.Context, space tenant.Space, logicalKey string) error {
	key, err := ResolveObjectKey(space, logicalKey)
	if err != nil {
		return err
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("r2 delete %s: %w", key, err)
	}
	return nil
}
