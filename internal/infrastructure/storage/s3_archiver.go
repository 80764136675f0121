package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	infraconfig "github.com/sellerpulse/backend/internal/infrastructure/config"
	"github.com/sellerpulse/backend/internal/infrastructure/snapshot"
)

// Ensure S3Archiver implements snapshot.Finalizer
var _ snapshot.Finalizer = (*S3Archiver)(nil)

const uploadTimeout = 2 * time.Minute

// S3Archiver finalizes committed snapshot files by uploading them to an
// S3-compatible bucket before removing them from local disk. It works with
// AWS S3, MinIO and other S3-compatible backends.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Archiver creates an archiver from the archive configuration
func NewS3Archiver(cfg *infraconfig.ArchiveConfig, logger *zap.Logger) (*S3Archiver, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("archive is not enabled")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
				endpoint = "https://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

// Finalize uploads the committed snapshot file and removes the local copy.
// A failed upload keeps the file on disk so the archive can be retried by
// hand; raw rows are already durable at this point, so ingestion correctness
// does not depend on the upload.
func (a *S3Archiver) Finalize(filePath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open snapshot for archiving: %w", err)
	}
	defer file.Close()

	key := path.Join(a.prefix, time.Now().UTC().Format("2006-01-02"), filepath.Base(filePath))
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive snapshot to s3://%s/%s: %w", a.bucket, key, err)
	}

	a.logger.Debug("snapshot archived",
		zap.String("file", filePath),
		zap.String("key", key),
	)
	return os.Remove(filePath)
}
