package hasher

import (
	"PicStore/internal/errs"
	"context"
	"fmt"
	"regexp"
)

var digestRegex = regexp.MustCompile(`^[0-9a-f]{32,128}$`)

// Source is the part of the tool adapter that produces digests.
type Source interface {
	Hash(ctx context.Context, path string) (string, error)
}

// Hasher computes the content digest used as the deduplication key.
type Hasher struct {
	source Source
}

// New returns a Hasher backed by source.
func New(source Source) *Hasher {
	return &Hasher{source: source}
}

// Hash digests the full content of path. Failures are never retried, a file
// that could not be read once will not be readable on a second attempt.
func (h *Hasher) Hash(ctx context.Context, path string) (string, error) {
	digest, err := h.source.Hash(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrHashComputation, err)
	}
	if !digestRegex.MatchString(digest) {
		return "", fmt.Errorf("%w: malformed digest %q", errs.ErrHashComputation, digest)
	}
	return digest, nil
}
