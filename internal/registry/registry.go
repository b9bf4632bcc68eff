// Package registry keeps one record per distinct picture content together
// with the number of holders referencing it.
package registry

import (
	"PicStore/internal/errs"
	"PicStore/model"
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// releaseAttempts bounds the decrement/delete race in Release.
const releaseAttempts = 3

// Orphan is a record removed by FindOrphans whose file still has to go.
type Orphan struct {
	ID   uint64
	Path string
}

type Registry struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

func (r *Registry) now() time.Time {
	return r.db.Config.NowFunc()
}

// Admit takes a reference on the record for digest, creating it pending at
// stagedPath when the content is new. created reports whether this call made
// the record; in that case the caller owns processing and must end with
// CommitProcessedPath or AbortAdmission.
func (r *Registry) Admit(ctx context.Context, digest, stagedPath string) (uint64, bool, error) {
	var stored model.Picture
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := model.Picture{
			Hash:     digest,
			Path:     stagedPath,
			RefCount: 1,
			Status:   model.PictureStatusPending,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "hash"}},
			DoUpdates: clause.Assignments(map[string]any{
				"ref_count":  gorm.Expr("picture.ref_count + 1"),
				"updated_at": r.now(),
			}),
		}).Create(&rec).Error; err != nil {
			return err
		}

		if err := tx.Where("hash = ?", digest).First(&stored).Error; err != nil {
			return err
		}
		if stored.Path != stagedPath && stored.Status == model.PictureStatusPending {
			// rolls back the increment
			return errs.ErrAdmissionInFlight
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return stored.ID, stored.Path == stagedPath, nil
}

// CommitProcessedPath records the final location of a pending picture.
func (r *Registry) CommitProcessedPath(ctx context.Context, id uint64, finalPath string) error {
	now := r.now()
	res := r.db.WithContext(ctx).Model(&model.Picture{}).
		Where("id = ? AND status = ?", id, model.PictureStatusPending).
		Updates(map[string]any{
			"path":         finalPath,
			"status":       model.PictureStatusProcessed,
			"processed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrRecordNotFound
	}
	return nil
}

// AbortAdmission drops a record whose processing failed. Records that were
// committed in the meantime are left alone.
func (r *Registry) AbortAdmission(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, model.PictureStatusPending).
		Delete(&model.Picture{}).Error
}

// Release drops one reference. When it was the last one the record is
// deleted and its path returned so the caller can unlink the file; otherwise
// path is empty.
func (r *Registry) Release(ctx context.Context, id uint64) (string, error) {
	for attempt := 0; attempt < releaseAttempts; attempt++ {
		path, done, err := r.releaseOnce(ctx, id)
		if err != nil {
			return "", err
		}
		if done {
			return path, nil
		}
		log.Debug().Uint64("picture_id", id).Int("attempt", attempt+1).Msg("release raced, retrying")
	}
	return "", errs.ErrRecordNotFound
}

func (r *Registry) releaseOnce(ctx context.Context, id uint64) (string, bool, error) {
	var path string
	done := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Picture{}).
			Where("id = ? AND ref_count > 1", id).
			UpdateColumn("ref_count", gorm.Expr("ref_count - 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			done = true
			return nil
		}

		var pic model.Picture
		if err := tx.Where("id = ?", id).First(&pic).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrRecordNotFound
			}
			return err
		}
		res = tx.Where("id = ? AND ref_count <= 1", id).Delete(&model.Picture{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			path = pic.Path
			done = true
		}
		return nil
	})
	return path, done, err
}

// FindOrphans deletes processed records no product references anymore and
// pending records left behind by crashed admissions, as long as they are
// not newer than cutoff. A processed record counts as new again whenever an
// admission takes a reference on it. The removed records are returned.
func (r *Registry) FindOrphans(ctx context.Context, cutoff time.Time) ([]Orphan, error) {
	cutoff = cutoff.UTC()
	var orphans []model.Picture
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(
			"(status = ? AND updated_at <= ? AND NOT EXISTS (SELECT 1 FROM product WHERE product.picture_id = picture.id))"+
				" OR (status = ? AND created_at <= ?)",
			model.PictureStatusProcessed, cutoff,
			model.PictureStatusPending, cutoff,
		).Find(&orphans).Error
		if err != nil || len(orphans) == 0 {
			return err
		}
		ids := lo.Map(orphans, func(p model.Picture, _ int) uint64 { return p.ID })
		return tx.Where("id IN ?", ids).Delete(&model.Picture{}).Error
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(orphans, func(p model.Picture, _ int) Orphan {
		return Orphan{ID: p.ID, Path: p.Path}
	}), nil
}

// Get returns the record with id.
func (r *Registry) Get(ctx context.Context, id uint64) (*model.Picture, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByHash returns the record for a content digest.
func (r *Registry) GetByHash(ctx context.Context, digest string) (*model.Picture, error) {
	return r.first(ctx, "hash = ?", digest)
}

func (r *Registry) first(ctx context.Context, query string, arg any) (*model.Picture, error) {
	var pic model.Picture
	err := r.db.WithContext(ctx).Where(query, arg).First(&pic).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pic, nil
}
