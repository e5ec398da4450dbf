package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dustin/go-humanize"
)

type S3Config struct {
	BucketName    string `mapstructure:"bucket_name"`
	Region        string `mapstructure:"region"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Endpoint      string `mapstructure:"endpoint"`
	Prefix        string `mapstructure:"prefix"`
	UseAccelerate bool   `mapstructure:"use_accelerate"`
}

func (c *S3Config) Validate() error {
	if c.BucketName == "" {
		return fmt.Errorf("bucket_name required")
	}
	if c.Region == "" {
		return fmt.Errorf("region required")
	}
	if c.AccessKey == "" {
		return fmt.Errorf("access_key required")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret_key required")
	}
	if c.Endpoint != "" && !strings.HasPrefix(c.Endpoint, "http://") && !strings.HasPrefix(c.Endpoint, "https://") {
		return fmt.Errorf("invalid endpoint URL %q", c.Endpoint)
	}
	if strings.HasPrefix(c.Prefix, "/") {
		return fmt.Errorf("prefix must be relative, got %q", c.Prefix)
	}
	return nil
}

// s3API is the subset of *s3.Client used by S3Storage.
type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Storage keeps backups in an S3 (or S3 compatible) bucket. Metadata files
// are objects below <prefix>/metadata/ and handles are their object keys.
type S3Storage struct {
	client s3API
	config *S3Config
}

func NewS3Storage(client s3API, cfg *S3Config) *S3Storage {
	return &S3Storage{client: client, config: cfg}
}

// NewS3StorageWithConfig builds the AWS client from static credentials.
// A custom endpoint switches to path style addressing for MinIO and friends.
func NewS3StorageWithConfig(ctx context.Context, cfg *S3Config) (*S3Storage, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 60 * time.Second,
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UseAccelerate {
			o.UseAccelerate = true
		}
	})

	return NewS3Storage(client, cfg), nil
}

func (s *S3Storage) ListMetadataFiles(ctx context.Context) ([]FileHandle, error) {
	prefix := metadataKey(s.config.Prefix, "") + "/"

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: &s.config.BucketName,
		Prefix: &prefix,
	})

	var handles []FileHandle
	var total int64
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", s.config.BucketName, prefix, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			handles = append(handles, FileHandle(key))
			total += aws.ToInt64(obj.Size)
		}
	}

	slog.Debug("s3 storage listed metadata", "bucket", s.config.BucketName, "files", len(handles), "size", humanize.Bytes(uint64(total)))
	return handles, nil
}

func (s *S3Storage) OpenForRead(ctx context.Context, handle FileHandle) (io.ReadCloser, error) {
	key := string(handle)
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.config.BucketName,
		Key:    &key,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
		}
		return nil, fmt.Errorf("get %s: %w", handle, err)
	}
	return resp.Body, nil
}

func (s *S3Storage) SaveMetadataLine(ctx context.Context, name string, line string) (FileHandle, error) {
	fileName, err := metadataFileName(name)
	if err != nil {
		return "", err
	}

	key := metadataKey(s.config.Prefix, fileName)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.config.BucketName,
		Key:           &key,
		Body:          strings.NewReader(line),
		ContentLength: aws.Int64(int64(len(line))),
		ContentType:   aws.String("application/x-ndjson"),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
			return "", fmt.Errorf("%w: %s", ErrAlreadyExists, name)
		}
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	slog.Debug("s3 storage saved metadata", "bucket", s.config.BucketName, "key", key)
	return FileHandle(key), nil
}

var _ BackupStorage = (*S3Storage)(nil)
