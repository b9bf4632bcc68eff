package storage

import (
	"PicStore/internal/errs"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// MaxPathLength leaves a wide margin under the 4096 bytes Linux accepts.
	MaxPathLength = 2048
	// MaxNameLength is the file name limit of common filesystems.
	MaxNameLength = 255

	randomTokenBytes = 8
)

// StageOptions describes where and how an upload is staged.
type StageOptions struct {
	Dir string
	// MaxSize is the size limit in bytes, 0 disables the check
	// (an upstream layer already bounded the payload).
	MaxSize int64
	// CheckBeforeWrite measures a seekable source before anything touches the disk.
	CheckBeforeWrite bool
}

// StagedFile is an upload materialized under a unique name before its content is known.
type StagedFile struct {
	Path string
	Size int64
}

// NewName returns "{millisecondsSinceEpoch}-{randomHex}".
// Two files can arrive in the same millisecond, the random suffix keeps them apart.
func NewName() string {
	token := make([]byte, randomTokenBytes)
	if _, err := rand.Read(token); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + hex.EncodeToString(token)
}

// NewPath builds a staging path inside dir and validates its length.
func NewPath(dir, ext string) (string, error) {
	name := NewName()
	if ext != "" {
		name += "." + ext
	}
	if len(name) > MaxNameLength {
		return "", errs.ErrPathTooLong
	}
	path := filepath.Join(dir, name)
	if len(path) > MaxPathLength {
		return "", errs.ErrPathTooLong
	}
	return path, nil
}

// Stage writes src to a fresh unique path under opts.Dir.
func Stage(ctx context.Context, src io.Reader, opts StageOptions) (*StagedFile, error) {
	info, err := os.Stat(opts.Dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", errs.ErrDirectoryNotFound, opts.Dir)
	}
	path, err := NewPath(opts.Dir, "")
	if err != nil {
		return nil, err
	}

	seeker, seekable := src.(io.Seeker)
	if opts.CheckBeforeWrite && opts.MaxSize > 0 && seekable {
		size, err := seeker.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, err
		}
		if size > opts.MaxSize {
			return nil, errs.ErrPayloadTooLarge
		}
		// rewind, or the written file is truncated
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
	}

	reader := src
	if opts.MaxSize > 0 {
		reader = io.LimitReader(src, opts.MaxSize+1)
	}
	size, err := writeFile(ctx, path, reader)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	if opts.MaxSize > 0 && size > opts.MaxSize {
		_ = os.Remove(path)
		return nil, errs.ErrPayloadTooLarge
	}
	return &StagedFile{Path: path, Size: size}, nil
}

func writeFile(ctx context.Context, path string, src io.Reader) (int64, error) {
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(dst, &ctxReader{ctx: ctx, r: src}); err != nil {
		_ = dst.Close()
		return 0, err
	}
	if err := dst.Close(); err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ctxReader stops a copy once the request goes away.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Discard removes a staged or stored file, a missing file is not an error.
func Discard(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
