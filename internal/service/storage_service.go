// Package service contains the business logic layer.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/jmylchreest/leadscout-api/internal/config"
	"github.com/jmylchreest/leadscout-api/internal/models"
)

// Archive kinds, used as the second path segment of an archive key.
const (
	ArchiveKindDiscovery = "discovery"
	ArchiveKindSeller    = "seller"
)

// ObjectStore is the subset of the S3 client the storage service uses.
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// StorageService archives finished runs to object storage (Tigris/S3-compatible).
type StorageService struct {
	client  ObjectStore
	bucket  string
	enabled bool
	logger  *slog.Logger
}

// NewStorageService creates a new storage service.
func NewStorageService(cfg *appconfig.Config, logger *slog.Logger) (*StorageService, error) {
	if !cfg.StorageEnabled {
		logger.Info("storage service disabled - no bucket configured")
		return &StorageService{
			enabled: false,
			logger:  logger,
		}, nil
	}

	client, err := NewS3Client(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("storage service initialized",
		"bucket", cfg.StorageBucket,
		"endpoint", cfg.StorageEndpoint,
	)

	return NewStorageServiceWithClient(client, cfg.StorageBucket, logger), nil
}

// NewStorageServiceWithClient creates an enabled storage service over an existing client.
func NewStorageServiceWithClient(client ObjectStore, bucket string, logger *slog.Logger) *StorageService {
	return &StorageService{
		client:  client,
		bucket:  bucket,
		enabled: client != nil && bucket != "",
		logger:  logger,
	}
}

// NewS3Client builds an S3 client for the configured S3-compatible endpoint.
func NewS3Client(ctx context.Context, cfg *appconfig.Config) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.StorageRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Custom endpoint for Tigris, MinIO, etc.
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
		o.UsePathStyle = true
	}), nil
}

// IsEnabled returns whether storage is configured and available.
func (s *StorageService) IsEnabled() bool {
	return s != nil && s.enabled
}

// Bucket returns the configured bucket name.
func (s *StorageService) Bucket() string {
	return s.bucket
}

// ArchiveKey returns the object key for a run archive.
func ArchiveKey(kind, runID string) string {
	return fmt.Sprintf("runs/%s/%s.json", kind, runID)
}

// ArchiveDiscoveryRun stores the full run document.
func (s *StorageService) ArchiveDiscoveryRun(ctx context.Context, run *models.DiscoveryRun) error {
	return s.put(ctx, ArchiveKindDiscovery, run.ID, run)
}

// ArchiveSellerRun stores the full seller run document.
func (s *StorageService) ArchiveSellerRun(ctx context.Context, run *models.SellerRun) error {
	return s.put(ctx, ArchiveKindSeller, run.ID, run)
}

func (s *StorageService) put(ctx context.Context, kind, runID string, v any) error {
	if s == nil || !s.enabled {
		return nil // Silently skip if storage is disabled
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal run archive: %w", err)
	}

	key := ArchiveKey(kind, runID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to store run archive: %w", err)
	}

	s.logger.Info("archived run",
		"run_id", runID,
		"key", key,
		"size_bytes", len(data),
	)
	return nil
}

// DeleteArchive removes a run archive.
func (s *StorageService) DeleteArchive(ctx context.Context, kind, runID string) error {
	if s == nil || !s.enabled {
		return nil
	}

	key := ArchiveKey(kind, runID)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete run archive: %w", err)
	}

	s.logger.Info("deleted run archive", "run_id", runID, "key", key)
	return nil
}
