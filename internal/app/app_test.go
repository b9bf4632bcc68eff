package app

import (
	"PicStore/config"
	"PicStore/internal/inspect"
	"PicStore/internal/tools"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAdapter(t *testing.T) {
	cfg := &config.Config{ToolBackend: "exec"}
	adapter, detector := NewAdapter(cfg)
	assert.IsType(t, &tools.ExecTools{}, adapter)
	assert.IsType(t, &tools.ExecTools{}, detector)

	cfg.ToolBackend = "native"
	adapter, detector = NewAdapter(cfg)
	assert.IsType(t, &tools.NativeTools{}, adapter)
	assert.IsType(t, inspect.MagicDetector{}, detector)
}

func TestBuildWithSQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Load(filepath.Join(dir, "missing.env"))
	cfg.DBDriver = "sqlite"
	cfg.DBPath = filepath.Join(dir, "app.db")
	cfg.UploadDir = filepath.Join(dir, "uploads")
	cfg.LockBackend = "local"
	cfg.MirrorEnabled = false

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.DirExists(t, cfg.UploadDir)
	deleted, err := a.Pictures.SweepOrphans(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestBuildRejectsUnknownDriver(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Load(filepath.Join(dir, "missing.env"))
	cfg.DBDriver = "oracle"
	cfg.UploadDir = dir

	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}
