// Package tools wraps the image operations the store depends on.
//
// The pipeline only talks to the Adapter interface. ExecTools shells out to
// exiftool, ImageMagick, file and sha256sum; NativeTools does the same work
// in-process with imaging and x/crypto.
package tools

import (
	"PicStore/internal/errs"
	"context"
	"errors"
	"time"
)

// Adapter is the capability set of the external image tools.
type Adapter interface {
	// StripMetadata removes all embedded metadata from path in place.
	StripMetadata(ctx context.Context, path string) error
	// Resolution returns width and height in pixels.
	Resolution(ctx context.Context, path string) (int, int, error)
	// Resize writes src scaled to percent of its size into dst.
	Resize(ctx context.Context, src, dst string, percent int) error
	// Convert writes src into dst, the output format follows dst's extension.
	Convert(ctx context.Context, src, dst string) error
	// Compare returns the normalized cross correlation of two pictures (1 = identical).
	Compare(ctx context.Context, a, b string) (float64, error)
	// Hash returns the hex content digest of path.
	Hash(ctx context.Context, path string) (string, error)
}

// IdenticalThreshold is the NCC above which two pictures are treated as the same.
const IdenticalThreshold = 0.99

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 30 * time.Second

// Identical compares two pictures with the adapter and applies IdenticalThreshold.
func Identical(ctx context.Context, adapter Adapter, a, b string) (bool, error) {
	ncc, err := adapter.Compare(ctx, a, b)
	if err != nil {
		return false, err
	}
	return ncc > IdenticalThreshold, nil
}

// Subtypes returns the media subtypes adapter can process, nil when it takes
// whatever the external tools understand.
func Subtypes(adapter Adapter) []string {
	if s, ok := adapter.(interface{ Subtypes() []string }); ok {
		return s.Subtypes()
	}
	return nil
}

// withTimeout runs fn under timeout and reports an expired deadline as ErrToolTimeout.
// Cancellation of the parent context is passed through untouched.
func withTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(tctx)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return errs.ErrToolTimeout
	}
	return err
}
