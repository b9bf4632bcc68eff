package service

import (
	"PicStore/internal/dto"
	"PicStore/internal/errs"
	"PicStore/model"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ProductService owns the products that hold picture references.
type ProductService struct {
	db       *gorm.DB
	pictures *PictureService
}

func NewProductService(db *gorm.DB, pictures *PictureService) *ProductService {
	return &ProductService{db: db, pictures: pictures}
}

// CreateProduct stores picture (optional) and creates the product pointing at it.
// If the product row cannot be written the picture reference is given back.
func (s *ProductService) CreateProduct(ctx context.Context, name string, picture io.Reader) (*dto.ProductResponse, error) {
	product := model.Product{Name: name}
	created := false
	if picture != nil {
		upload, err := s.pictures.UploadAndDeduplicate(ctx, picture)
		if err != nil {
			return nil, err
		}
		product.PictureID = &upload.PictureID
		created = upload.Created
	}

	if err := s.db.WithContext(ctx).Create(&product).Error; err != nil {
		if product.PictureID != nil {
			s.releaseAndUnlink(context.WithoutCancel(ctx), *product.PictureID)
		}
		return nil, fmt.Errorf("create product: %w", err)
	}
	return &dto.ProductResponse{ID: product.ID, Name: product.Name, PictureID: product.PictureID, Created: created}, nil
}

// DeleteProduct removes the product and releases its picture reference.
func (s *ProductService) DeleteProduct(ctx context.Context, id uint64) error {
	var product model.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: product %d", errs.ErrNotFound, id)
			}
			return err
		}
		return tx.Delete(&product).Error
	})
	if err != nil {
		return err
	}
	if product.PictureID == nil {
		return nil
	}

	path, err := s.pictures.ReleasePicture(ctx, *product.PictureID)
	if err != nil {
		return err
	}
	return s.pictures.Unlink(ctx, path)
}

// GetProduct returns a product by id.
func (s *ProductService) GetProduct(ctx context.Context, id uint64) (*model.Product, error) {
	var product model.Product
	if err := s.db.WithContext(ctx).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %d", errs.ErrNotFound, id)
		}
		return nil, err
	}
	return &product, nil
}

func (s *ProductService) releaseAndUnlink(ctx context.Context, pictureID uint64) {
	path, err := s.pictures.ReleasePicture(ctx, pictureID)
	if err != nil {
		log.Error().Err(err).Uint64("picture_id", pictureID).Msg("rollback picture reference")
		return
	}
	if err := s.pictures.Unlink(ctx, path); err != nil {
		log.Error().Err(err).Str("path", path).Msg("rollback picture file")
	}
}
