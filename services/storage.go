package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrStorageNotConfigured is raised on first access to the storage service
// when no bucket is configured.
var ErrStorageNotConfigured = errors.New("media storage bucket not configured")

// StorageConfig holds S3-compatible media storage configuration.
type StorageConfig struct {
	Bucket         string `env:"STORAGE_BUCKET"`
	Region         string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	AccessKeyID    string `env:"STORAGE_ACCESS_KEY_ID"`
	SecretKey      string `env:"STORAGE_SECRET_KEY"`
	Endpoint       string `env:"STORAGE_ENDPOINT"` // optional, for S3-compatible services
	BaseURL        string `env:"STORAGE_BASE_URL"` // public URL base for serving media
	ForcePathStyle bool   `env:"STORAGE_FORCE_PATH_STYLE" envDefault:"false"`
}

// S3Client is the subset of the S3 API the storage service uses.
// Satisfied by *s3.Client; tests substitute a mock.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Storage uploads media objects to S3-compatible storage.
type Storage struct {
	client  S3Client
	bucket  string
	baseURL string
}

func newStorage(ctx context.Context, cfg StorageConfig) (*Storage, error) {
	if cfg.Bucket == "" {
		return nil, ErrStorageNotConfigured
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Storage{client: client, bucket: cfg.Bucket, baseURL: strings.TrimSuffix(cfg.BaseURL, "/")}, nil
}

// NewStorageWithClient builds a storage service around an existing client.
// Used by tests.
func NewStorageWithClient(client S3Client, bucket, baseURL string) *Storage {
	return &Storage{client: client, bucket: bucket, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Upload stores a media object and returns its public URL.
func (s *Storage) Upload(ctx context.Context, key, contentType string, body []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %q: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

// Remove deletes a media object.
func (s *Storage) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}

// MediaKey builds the canonical object key for a content item's media,
// namespaced by organization.
func MediaKey(orgID, contentID uuid.UUID, filename string) string {
	return path.Join("media", orgID.String(), contentID.String(), path.Base(filename))
}
