package storage

import (
	"context"
	"path/filepath"
)

// Mirror keeps an off-host copy of every processed picture.
type Mirror interface {
	Put(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
}

// ObjectName is the key a local picture is mirrored under. Stored names are
// unique within the upload directory so the base name is enough.
func ObjectName(path string) string {
	return "pictures/" + filepath.Base(path)
}
