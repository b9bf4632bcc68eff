// Package app wires the picture store from configuration.
package app

import (
	"PicStore/config"
	"PicStore/internal/hasher"
	"PicStore/internal/inspect"
	"PicStore/internal/pipeline"
	"PicStore/internal/registry"
	"PicStore/internal/repo"
	"PicStore/internal/service"
	"PicStore/internal/storage"
	"PicStore/internal/tools"
	"PicStore/utils"
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type App struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Pictures *service.PictureService
	Products *service.ProductService
}

// NewAdapter picks the tool backend: "exec" shells out to exiftool,
// ImageMagick and file(1), anything else runs in-process with magic byte
// sniffing.
func NewAdapter(cfg *config.Config) (tools.Adapter, inspect.Detector) {
	if cfg.ToolBackend == "exec" {
		execTools := tools.NewExecTools(cfg.ToolTimeout)
		return execTools, execTools
	}
	return tools.NewNativeTools(cfg.ToolTimeout), inspect.MagicDetector{}
}

// Build opens every backing service the configuration asks for.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}

	db, err := repo.OpenDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &App{DB: db}

	var locker service.Locker = utils.NewKeyedMutex()
	if cfg.LockBackend == "redis" {
		rdb, err := repo.NewRedisClient(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = rdb
		locker = repo.NewRedisLocker(rdb, cfg.LockTTL)
	}

	var mirror storage.Mirror
	if cfg.MirrorEnabled {
		m, err := storage.NewMinioMirror(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		mirror = m
	}

	adapter, detector := NewAdapter(cfg)
	inspector := inspect.New(detector)
	a.Pictures = service.NewPictureService(service.PictureDeps{
		Registry:  registry.New(db),
		Hasher:    hasher.New(adapter),
		Inspector: inspector,
		Pipeline: pipeline.New(adapter, inspector, pipeline.Options{
			MaxDimension:     cfg.ResizeMaxDimension,
			TargetSubtype:    cfg.TargetFormat,
			VerifyConversion: cfg.VerifyConversion,
		}),
		Locker: locker,
		Mirror: mirror,
	}, service.PictureOptions{
		UploadDir:            cfg.UploadDir,
		MaxUploadBytes:       cfg.MaxUploadBytes,
		CheckSizeBeforeWrite: cfg.CheckSizeBeforeWrite,
		AllowedTypes:         cfg.AllowedTypes,
		Subtypes:             tools.Subtypes(adapter),
		OrphanGrace:          cfg.OrphanGrace,
	})
	a.Products = service.NewProductService(db, a.Pictures)

	log.Info().
		Str("tools", cfg.ToolBackend).
		Str("lock", cfg.LockBackend).
		Bool("mirror", mirror != nil).
		Str("upload_dir", cfg.UploadDir).
		Msg("picture store ready")
	return a, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
