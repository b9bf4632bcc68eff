package storage

import (
	"PicStore/config"
	"context"
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// MinioMirror implements Mirror with a MinIO bucket.
type MinioMirror struct {
	client *minio.Client
	bucket string
}

// NewMinioMirror connects to MinIO and creates the bucket when missing.
func NewMinioMirror(ctx context.Context, cfg *config.Config) (*MinioMirror, error) {
	client, err := minio.New(fmt.Sprintf("%s:%s", cfg.MinioHost, cfg.MinioPort), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioUsername, cfg.MinioPassword, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
		log.Info().Str("bucket", cfg.BucketName).Msg("created mirror bucket")
	}
	return &MinioMirror{client: client, bucket: cfg.BucketName}, nil
}

// Put uploads the file at path.
func (m *MinioMirror) Put(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	contentType := "application/octet-stream"
	if mtype, err := mimetype.DetectFile(path); err == nil {
		contentType = mtype.String()
	}
	_, err = m.client.PutObject(ctx, m.bucket, ObjectName(path), f, info.Size(), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// Remove deletes the mirrored copy. Missing objects are not an error.
func (m *MinioMirror) Remove(ctx context.Context, path string) error {
	return m.client.RemoveObject(ctx, m.bucket, ObjectName(path), minio.RemoveObjectOptions{})
}
