package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the s3 client used by S3Store.
type S3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store maps every key to one object under a prefix in a bucket
// (or an S3-compatible API). Keys enumerate in lexicographic order.
type S3Store struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

func NewS3Store(client S3API, bucket, keyPrefix string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	prefix := strings.Trim(keyPrefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

// Acquire does not dial; the SDK manages its own HTTP connections.
func (s *S3Store) Acquire(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &s3Conn{store: s}, nil
}

func (s *S3Store) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("head bucket: %w", err)
	}
	return nil
}

func (s *S3Store) Close() error { return nil }

func (s *S3Store) objectKey(key string) string {
	return s.prefix + key
}

type s3Conn struct {
	store *S3Store
}

func (c *s3Conn) Set(ctx context.Context, key, value string) error {
	s := c.store
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        strings.NewReader(value),
		ContentType: aws.String("text/plain; charset=utf-8"),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (c *s3Conn) Get(ctx context.Context, key string) (string, error) {
	s := c.store
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", ErrKeyNotFound
		}
		return "", fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("read object %s: %w", key, err)
	}
	return string(b), nil
}

func (c *s3Conn) Keys(ctx context.Context, limit int) ([]string, error) {
	keys := keyBuf(limit)
	if limit <= 0 {
		return keys, nil
	}

	s := c.store
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}

	for {
		input.MaxKeys = aws.Int32(int32(min(limit-len(keys), math.MaxInt32)))
		output, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}

		for _, obj := range output.Contents {
			k := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if k == "" || strings.Contains(k, "/") {
				continue
			}
			keys = append(keys, k)
			if len(keys) == limit {
				return keys, nil
			}
		}

		if !aws.ToBool(output.IsTruncated) || output.NextContinuationToken == nil {
			return keys, nil
		}
		input.ContinuationToken = output.NextContinuationToken
	}
}

func (c *s3Conn) Close() error { return nil }

var _ Store = (*S3Store)(nil)
