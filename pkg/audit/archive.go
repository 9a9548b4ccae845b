package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ArchiveConfig locates the bucket audit exports are written to
type ArchiveConfig struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint and UsePathStyle target S3-compatible stores such as MinIO
	Endpoint     string
	UsePathStyle bool

	// Static credentials; the default AWS credential chain is used when empty
	AccessKey string
	SecretKey string
}

// S3Archiver uploads audit exports to S3
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archiver creates an archiver for cfg
func NewS3Archiver(ctx context.Context, cfg ArchiveConfig) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("audit archive bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	return &S3Archiver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Key returns the object key for an archive taken at t
func (a *S3Archiver) Key(t time.Time) string {
	t = t.UTC()
	return path.Join(a.prefix, t.Format("2006/01/02"), "audit-"+t.Format("20060102T150405Z")+".ndjson")
}

// Archive uploads events as NDJSON and returns the object key
func (a *S3Archiver) Archive(ctx context.Context, events []*Event, at time.Time) (string, error) {
	var buf bytes.Buffer
	if err := Export(&buf, events, ExportFormatNDJSON); err != nil {
		return "", err
	}

	hash := sha256.Sum256(buf.Bytes())
	key := a.Key(at)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(ExportFormatNDJSON.ContentType()),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(hash[:]),
			"event-count":     fmt.Sprintf("%d", len(events)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload audit archive to s3: %w", err)
	}
	return key, nil
}
