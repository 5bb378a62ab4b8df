package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/Rigel07/invoice-extractor/config"
	"github.com/Rigel07/invoice-extractor/model"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArchiveService keeps uploaded source files and generated documents in
// object storage so jobs can be audited after the job record is evicted.
type ArchiveService struct {
	client *minio.Client
	bucket string
}

func NewArchiveService(cfg *config.ArchiveConfig) (*ArchiveService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &ArchiveService{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *ArchiveService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// StoreSourceFiles archives the uploaded files for a job. Failures are
// logged, never surfaced: archival must not affect job processing.
func (s *ArchiveService) StoreSourceFiles(ctx context.Context, jobID string, files []model.FileInput) {
	for _, f := range files {
		objectName := fmt.Sprintf("jobs/%s/source/%s", jobID, f.Filename)
		_, err := s.client.PutObject(ctx, s.bucket, objectName,
			bytes.NewReader(f.Bytes), int64(len(f.Bytes)),
			minio.PutObjectOptions{ContentType: f.MimeType})
		if err != nil {
			slog.Warn("failed to archive source file",
				"job_id", jobID,
				"file", f.Filename,
				"error", err,
			)
		}
	}
}

// StoreOutput archives a generated document (XML or CSV) for a job.
func (s *ArchiveService) StoreOutput(ctx context.Context, jobID, name, contentType string, data []byte) error {
	objectName := fmt.Sprintf("jobs/%s/output/%s", jobID, name)
	_, err := s.client.PutObject(ctx, s.bucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to archive output: %w", err)
	}
	return nil
}
