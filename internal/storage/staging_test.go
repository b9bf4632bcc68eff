package storage

import (
	"PicStore/internal/errs"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNewNameFormat(t *testing.T) {
	re := regexp.MustCompile(`^[0-9]{13,}-[0-9a-f]{16}$`)
	name := NewName()
	assert.Regexp(t, re, name)
}

func TestNewNameNeverCollides(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		name := NewName()
		_, dup := seen[name]
		require.False(t, dup, "collision on %s", name)
		seen[name] = struct{}{}
	}
}

func TestStageWritesFile(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("hello picture")

	for _, check := range []bool{true, false} {
		staged, err := Stage(context.Background(), bytes.NewReader(payload), StageOptions{
			Dir:              dir,
			MaxSize:          1024,
			CheckBeforeWrite: check,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(len(payload)), staged.Size)

		got, err := os.ReadFile(staged.Path)
		require.NoError(t, err)
		assert.Equal(t, payload, got, "file must not be truncated (check=%v)", check)
	}
	assert.Len(t, listDir(t, dir), 2)
}

func TestStageDirectoryNotFound(t *testing.T) {
	_, err := Stage(context.Background(), strings.NewReader("x"), StageOptions{
		Dir: filepath.Join(t.TempDir(), "missing"),
	})
	assert.ErrorIs(t, err, errs.ErrDirectoryNotFound)
}

func TestStagePathTooLong(t *testing.T) {
	base := t.TempDir()
	dir := base
	// nest directories until the path alone is over the limit
	for len(dir) <= MaxPathLength {
		dir = filepath.Join(dir, strings.Repeat("d", 200))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Skipf("filesystem refused a long path: %v", err)
	}
	_, err := Stage(context.Background(), strings.NewReader("x"), StageOptions{Dir: dir})
	assert.ErrorIs(t, err, errs.ErrPathTooLong)
}

func TestStageOversizedBothModes(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 2048)

	for _, check := range []bool{true, false} {
		dir := t.TempDir()
		_, err := Stage(context.Background(), bytes.NewReader(payload), StageOptions{
			Dir:              dir,
			MaxSize:          1024,
			CheckBeforeWrite: check,
		})
		assert.ErrorIs(t, err, errs.ErrPayloadTooLarge, "check=%v", check)
		assert.Empty(t, listDir(t, dir), "no file may remain (check=%v)", check)
	}
}

func TestStageNonSeekableFallsBackToWriteThenCheck(t *testing.T) {
	dir := t.TempDir()
	payload := bytes.Repeat([]byte("b"), 100)

	_, err := Stage(context.Background(), io.MultiReader(bytes.NewReader(payload)), StageOptions{
		Dir:              dir,
		MaxSize:          10,
		CheckBeforeWrite: true,
	})
	assert.ErrorIs(t, err, errs.ErrPayloadTooLarge)
	assert.Empty(t, listDir(t, dir))
}

func TestStageZeroMaxSizeDisablesLimit(t *testing.T) {
	dir := t.TempDir()
	payload := bytes.Repeat([]byte("c"), 64*1024)

	staged, err := Stage(context.Background(), bytes.NewReader(payload), StageOptions{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), staged.Size)
}

func TestStageCancelledRemovesPartialFile(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Stage(ctx, strings.NewReader("data"), StageOptions{Dir: dir})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, listDir(t, dir))
}

func TestDiscardMissingFile(t *testing.T) {
	assert.NoError(t, Discard(filepath.Join(t.TempDir(), "nope")))
	assert.NoError(t, Discard(""))
}
