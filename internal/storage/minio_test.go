package storage

import (
	"PicStore/config"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectName(t *testing.T) {
	assert.Equal(t, "pictures/1700000000000-0011223344556677.jpeg",
		ObjectName("/srv/uploads/1700000000000-0011223344556677.jpeg"))
}

func TestMinioMirrorRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := config.Load()
	cfg.BucketName = "picstore-test"
	mirror, err := NewMinioMirror(ctx, cfg)
	if err != nil {
		t.Skipf("minio not available: %v", err)
	}

	path := filepath.Join(t.TempDir(), NewName()+".txt")
	require.NoError(t, os.WriteFile(path, []byte("mirrored"), 0o644))

	require.NoError(t, mirror.Put(ctx, path))
	stat, err := mirror.client.StatObject(ctx, mirror.bucket, ObjectName(path), minio.StatObjectOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(len("mirrored")), stat.Size)

	require.NoError(t, mirror.Remove(ctx, path))
	_, err = mirror.client.StatObject(ctx, mirror.bucket, ObjectName(path), minio.StatObjectOptions{})
	assert.Error(t, err)
}
