package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the subset of the S3 client used by S3Store, narrowed so tests can
// substitute a fake.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads generated media to an S3 bucket. Destinations look like
// s3://bucket/optional/prefix.
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Store parses an s3:// destination URL and builds a store backed by the
// default AWS credential chain.
func NewS3Store(ctx context.Context, destination string) (*S3Store, error) {
	bucket, prefix, err := parseS3URL(destination)
	if err != nil {
		return nil, err
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Write uploads data under the given key and returns the s3:// location of
// the stored object.
func (s *S3Store) Write(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	objectKey := cleanKey
	if s.prefix != "" {
		objectKey = path.Join(s.prefix, cleanKey)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("storage: put object %s: %w", objectKey, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, objectKey), nil
}

func parseS3URL(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("storage: parse destination: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("storage: expected s3:// destination, got %q", raw)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("storage: destination %q is missing a bucket", raw)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}
