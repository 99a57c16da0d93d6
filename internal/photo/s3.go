package photo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

var _ domain.PhotoStore = (*S3Store)(nil)

// S3Config holds the bucket settings. Credentials fall back to the default
// AWS chain when the key pair is empty.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, e.g. a MinIO URL
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool

	// HTTPClient overrides the transport; tests use it.
	HTTPClient *http.Client
}

// S3Store keeps photos in a single bucket. Paths recorded on recipes have
// the form s3://<bucket>/<key>.
type S3Store struct {
	client *s3.Client
	bucket string
	log    *logger.Logger
}

// NewS3Store builds an S3 client from cfg.
func NewS3Store(ctx context.Context, cfg S3Config, log *logger.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket required", domain.ErrValidation)
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return &S3Store{client: client, bucket: cfg.Bucket, log: log}, nil
}

// Put uploads the photo. The body is buffered so the request is seekable
// and can be signed and retried.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading photo: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("uploading photo %s: %w", key, err)
	}

	s.log.Debug("photo: uploaded s3://%s/%s (%d bytes)", s.bucket, key, len(body))
	return s.path(key), nil
}

// Delete removes the object behind path. S3 treats missing keys as
// already deleted.
func (s *S3Store) Delete(ctx context.Context, path string) error {
	key, ok := strings.CutPrefix(path, s.path(""))
	if !ok || key == "" {
		return fmt.Errorf("%w: photo path %q not in bucket %s", domain.ErrValidation, path, s.bucket)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return fmt.Errorf("deleting photo %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key is present in the bucket.
func (s *S3Store) Exists(ctx context.Context, path string) (bool, error) {
	key, ok := strings.CutPrefix(path, s.path(""))
	if !ok {
		return false, fmt.Errorf("%w: photo path %q not in bucket %s", domain.ErrValidation, path, s.bucket)
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, fmt.Errorf("checking photo %s: %w", key, err)
}

func (s *S3Store) path(key string) string {
	return "s3://" + s.bucket + "/" + key
}
