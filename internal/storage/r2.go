package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// defaultURLExpiry applies when URL is called with expires == 0.
const defaultURLExpiry = 15 * time.Minute

// R2Storage stores objects in a Cloudflare R2 bucket through the S3 API.
type R2Storage struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucketName    string
	logger        *slog.Logger
}

var _ Storage = (*R2Storage)(nil)

// NewR2Storage builds an S3 client pointed at the account's R2 endpoint.
func NewR2Storage(cfg R2Config, logger *slog.Logger) (*R2Storage, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("r2: bucket name is required")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.AccountID == "" {
			return nil, errors.New("r2: account ID is required")
		}
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}

	client := s3.New(s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		BaseEndpoint: aws.String(endpoint),
		UsePathStyle: true,
	})

	logger.Info("initialized R2 storage", "bucket", cfg.BucketName, "endpoint", endpoint)

	return &R2Storage{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucketName:    cfg.BucketName,
		logger:        logger,
	}, nil
}

func (s *R2Storage) Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error {
	if err := validateKey(key); err != nil {
		return &StorageError{Op: "Put", Key: key, Err: err}
	}

	if !opts.Overwrite {
		exists, err := s.Exists(ctx, key)
		if err != nil {
			return &StorageError{Op: "Put", Key: key, Err: fmt.Errorf("check existence: %w", err)}
		}
		if exists {
			return &StorageError{Op: "Put", Key: key, Err: ErrKeyExists}
		}
	}

	// The SDK needs a seekable body to sign the payload, so the snapshot is
	// buffered. Snapshots are small.
	src := data
	if opts.MaxSize > 0 {
		src = io.LimitReader(data, opts.MaxSize+1)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		return &StorageError{Op: "Put", Key: key, Err: fmt.Errorf("read body: %w", err)}
	}
	if opts.MaxSize > 0 && int64(len(body)) > opts.MaxSize {
		return &StorageError{Op: "Put", Key: key, Err: ErrTooLarge}
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = contentTypeFor(key)
	}

	result, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return &StorageError{Op: "Put", Key: key, Err: wrapS3Error(err)}
	}

	s.logger.Debug("stored object in R2", "key", key, "etag", aws.ToString(result.ETag), "size", len(body))
	return nil
}

func (s *R2Storage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := validateKey(key); err != nil {
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: err}
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: wrapS3Error(err)}
	}

	return result.Body, ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(result.ContentLength),
		ContentType:  aws.ToString(result.ContentType),
		LastModified: aws.ToTime(result.LastModified),
		ETag:         aws.ToString(result.ETag),
	}, nil
}

func (s *R2Storage) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, &StorageError{Op: "Exists", Key: key, Err: err}
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if errors.Is(wrapS3Error(err), ErrNotFound) {
			return false, nil
		}
		return false, &StorageError{Op: "Exists", Key: key, Err: wrapS3Error(err)}
	}
	return true, nil
}

// URL returns a presigned GET link.
func (s *R2Storage) URL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if err := validateKey(key); err != nil {
		return "", &StorageError{Op: "URL", Key: key, Err: err}
	}
	if expires <= 0 {
		expires = defaultURLExpiry
	}

	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", &StorageError{Op: "URL", Key: key, Err: fmt.Errorf("presign: %w", err)}
	}
	return req.URL, nil
}

// wrapS3Error maps SDK errors onto the package sentinels.
func wrapS3Error(err error) error {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return ErrNotFound
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %s", ErrAccessDenied, apiErr.ErrorMessage())
		}
	}

	return fmt.Errorf("r2: %w", err)
}
