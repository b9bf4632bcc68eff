package service

import (
	"PicStore/internal/dto"
	"PicStore/internal/errs"
	"PicStore/internal/hasher"
	"PicStore/internal/inspect"
	"PicStore/internal/pipeline"
	"PicStore/internal/registry"
	"PicStore/internal/storage"
	"PicStore/model"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// Locker hands out mutual exclusion per key. utils.KeyedMutex works inside
// one process, repo.RedisLocker across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type PictureOptions struct {
	UploadDir            string
	MaxUploadBytes       int64
	CheckSizeBeforeWrite bool
	AllowedTypes         []string
	// Subtypes limits uploads to formats the tool backend can process, empty means any.
	Subtypes []string
	// OrphanGrace keeps fresh unreferenced pictures out of the sweep so an
	// upload has time to be attached to a product.
	OrphanGrace time.Duration
}

type PictureDeps struct {
	Registry  *registry.Registry
	Hasher    *hasher.Hasher
	Inspector *inspect.Inspector
	Pipeline  *pipeline.Pipeline
	Locker    Locker
	// Mirror is optional.
	Mirror storage.Mirror
}

type PictureService struct {
	PictureDeps
	opts PictureOptions
	now  func() time.Time
}

func NewPictureService(deps PictureDeps, opts PictureOptions) *PictureService {
	if len(opts.AllowedTypes) == 0 {
		opts.AllowedTypes = []string{"image"}
	}
	return &PictureService{PictureDeps: deps, opts: opts, now: time.Now}
}

// UploadAndDeduplicate stores blob once per distinct content and returns the
// record the caller now holds a reference on.
func (s *PictureService) UploadAndDeduplicate(ctx context.Context, blob io.Reader) (*dto.UploadResult, error) {
	staged, err := storage.Stage(ctx, blob, storage.StageOptions{
		Dir:              s.opts.UploadDir,
		MaxSize:          s.opts.MaxUploadBytes,
		CheckBeforeWrite: s.opts.CheckSizeBeforeWrite,
	})
	if err != nil {
		return nil, err
	}
	discard := func() {
		if err := storage.Discard(staged.Path); err != nil {
			log.Error().Err(err).Str("path", staged.Path).Msg("discard staged upload")
		}
	}

	if !s.Inspector.AcceptsFormat(staged.Path, s.opts.AllowedTypes, s.opts.Subtypes) {
		discard()
		return nil, errs.ErrNotAPicture
	}

	digest, err := s.Hasher.Hash(ctx, staged.Path)
	if err != nil {
		discard()
		return nil, err
	}

	unlock, err := s.Locker.Lock(ctx, digest)
	if err != nil {
		discard()
		return nil, fmt.Errorf("lock %s: %w", digest, err)
	}
	defer unlock()

	id, created, err := s.Registry.Admit(ctx, digest, staged.Path)
	if err != nil {
		discard()
		return nil, err
	}

	if !created {
		discard()
		pic, err := s.Registry.Get(ctx, id)
		if err != nil {
			// give back the reference nobody will ever release
			if _, relErr := s.Registry.Release(context.WithoutCancel(ctx), id); relErr != nil {
				log.Error().Err(relErr).Uint64("picture_id", id).Msg("release after failed lookup")
			}
			return nil, err
		}
		log.Debug().Uint64("picture_id", id).Str("hash", digest).Msg("duplicate upload")
		return &dto.UploadResult{PictureID: id, Hash: digest, Created: false, Path: pic.Path}, nil
	}

	final, err := s.Pipeline.Process(ctx, staged.Path)
	if err != nil {
		s.abort(ctx, id)
		return nil, err
	}
	if err := s.Registry.CommitProcessedPath(ctx, id, final); err != nil {
		s.abort(ctx, id)
		s.unlinkLocal(final)
		return nil, err
	}

	if s.Mirror != nil {
		if err := s.Mirror.Put(ctx, final); err != nil {
			log.Warn().Err(err).Str("path", final).Msg("mirror upload failed")
		}
	}
	log.Info().Uint64("picture_id", id).Str("hash", digest).Str("path", final).Msg("picture stored")
	return &dto.UploadResult{PictureID: id, Hash: digest, Created: true, Path: final}, nil
}

// abort runs even when ctx was cancelled, a pending record must not outlive
// the request that created it.
func (s *PictureService) abort(ctx context.Context, id uint64) {
	if err := s.Registry.AbortAdmission(context.WithoutCancel(ctx), id); err != nil {
		log.Error().Err(err).Uint64("picture_id", id).Msg("abort admission")
	}
}

// ReleasePicture drops one reference and returns the path to unlink when it
// was the last one.
func (s *PictureService) ReleasePicture(ctx context.Context, id uint64) (string, error) {
	path, err := s.Registry.Release(ctx, id)
	if errors.Is(err, errs.ErrRecordNotFound) {
		log.Error().Uint64("picture_id", id).Msg("dangling picture reference released")
		return "", fmt.Errorf("release picture %d: %w", id, err)
	}
	return path, err
}

// Unlink removes a released picture file and its mirrored copy.
func (s *PictureService) Unlink(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	if s.Mirror != nil {
		if err := s.Mirror.Remove(ctx, path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("mirror remove failed")
		}
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *PictureService) unlinkLocal(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error().Err(err).Str("path", path).Msg("remove picture")
	}
}

// SweepOrphans removes pictures no product references that are older than
// the grace period, and pending records left behind by crashes.
func (s *PictureService) SweepOrphans(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.opts.OrphanGrace)
	orphans, err := s.Registry.FindOrphans(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	var unlinkErrs []error
	for _, orphan := range orphans {
		if err := s.Unlink(ctx, orphan.Path); err != nil {
			unlinkErrs = append(unlinkErrs, fmt.Errorf("unlink %s: %w", orphan.Path, err))
		}
	}
	log.Info().Int("deleted", len(orphans)).Time("cutoff", cutoff).Msg("orphan sweep finished")
	return len(orphans), errors.Join(unlinkErrs...)
}

// GetPicture looks a picture up without touching its reference count.
func (s *PictureService) GetPicture(ctx context.Context, id uint64) (*model.Picture, error) {
	pic, err := s.Registry.Get(ctx, id)
	if errors.Is(err, errs.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: picture %d", errs.ErrNotFound, id)
	}
	return pic, err
}
