package pipeline

import (
	"PicStore/internal/errs"
	"PicStore/internal/inspect"
	"PicStore/internal/tools"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noise(width, height int) image.Image {
	rnd := rand.New(rand.NewSource(42))
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(rnd.Intn(256)), G: uint8(rnd.Intn(256)), B: uint8(rnd.Intn(256)), A: 255})
		}
	}
	return img
}

func writeNoisePNG(t *testing.T, path string, width, height int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, noise(width, height)))
	require.NoError(t, f.Close())
}

func writeJPEG(t *testing.T, path string, width, height int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, noise(width, height), &jpeg.Options{Quality: 80}))
	require.NoError(t, f.Close())
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	list, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, e := range list {
		names = append(names, e.Name())
	}
	return names
}

// flakyTools wraps the native adapter and lets a test fail chosen calls.
type flakyTools struct {
	*tools.NativeTools
	stripTimeouts int32
	stripCalls    atomic.Int32
	skipStrip     bool
	convertErr    error
}

func (f *flakyTools) StripMetadata(ctx context.Context, path string) error {
	n := f.stripCalls.Add(1)
	if n <= f.stripTimeouts {
		return errs.ErrToolTimeout
	}
	if f.skipStrip {
		return nil
	}
	return f.NativeTools.StripMetadata(ctx, path)
}

func (f *flakyTools) Convert(ctx context.Context, src, dst string) error {
	if f.convertErr != nil {
		// leave a partial output behind like a crashed tool would
		_ = os.WriteFile(dst, []byte("partial"), 0o644)
		return f.convertErr
	}
	return f.NativeTools.Convert(ctx, src, dst)
}

func newPipeline(adapter tools.Adapter, maxDimension int) *Pipeline {
	return New(adapter, inspect.New(nil), Options{MaxDimension: maxDimension, RetryDelay: time.Millisecond})
}

func TestProcessResizesAndConverts(t *testing.T) {
	dir := t.TempDir()
	staged := filepath.Join(dir, "1700000000000-0011223344556677")
	writeNoisePNG(t, staged, 300, 200)

	native := tools.NewNativeTools(5 * time.Second)
	final, err := newPipeline(native, 100).Process(context.Background(), staged)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(final, ".jpeg"), final)
	assert.Equal(t, []string{filepath.Base(final)}, entries(t, dir))

	typ, subtype, err := inspect.New(nil).Detect(final)
	require.NoError(t, err)
	assert.Equal(t, "image", typ)
	assert.Equal(t, "jpeg", subtype)

	w, h, err := native.Resolution(context.Background(), final)
	require.NoError(t, err)
	assert.Equal(t, 99, w)
	assert.Equal(t, 66, h)
}

func TestProcessSmallJPEGOnlyGetsExtension(t *testing.T) {
	dir := t.TempDir()
	staged := filepath.Join(dir, "1700000000000-8899aabbccddeeff")
	writeJPEG(t, staged, 40, 30)

	native := tools.NewNativeTools(5 * time.Second)
	final, err := newPipeline(native, 800).Process(context.Background(), staged)
	require.NoError(t, err)
	assert.Equal(t, staged+".jpeg", final)

	w, h, err := native.Resolution(context.Background(), final)
	require.NoError(t, err)
	assert.Equal(t, 40, w)
	assert.Equal(t, 30, h)
}

func TestProcessRejectsText(t *testing.T) {
	dir := t.TempDir()
	staged := filepath.Join(dir, "staged")
	require.NoError(t, os.WriteFile(staged, []byte("plain text, not a picture"), 0o644))

	adapter := &flakyTools{NativeTools: tools.NewNativeTools(time.Second), skipStrip: true}
	_, err := newPipeline(adapter, 800).Process(context.Background(), staged)
	assert.ErrorIs(t, err, errs.ErrProcessingFailed)
	assert.ErrorIs(t, err, errs.ErrNotAPicture)
	assert.False(t, errs.IsClientFault(err))
	assert.Empty(t, entries(t, dir))
}

func TestProcessStripFailure(t *testing.T) {
	dir := t.TempDir()
	staged := filepath.Join(dir, "staged")
	require.NoError(t, os.WriteFile(staged, []byte("plain text"), 0o644))

	_, err := newPipeline(tools.NewNativeTools(time.Second), 800).Process(context.Background(), staged)
	assert.ErrorIs(t, err, errs.ErrProcessingFailed)
	assert.ErrorIs(t, err, errs.ErrMetadataStripFailed)
	assert.Empty(t, entries(t, dir))
}

func TestProcessZeroMaxDimension(t *testing.T) {
	dir := t.TempDir()
	staged := filepath.Join(dir, "staged")
	writeNoisePNG(t, staged, 20, 20)

	_, err := newPipeline(tools.NewNativeTools(time.Second), 0).Process(context.Background(), staged)
	assert.ErrorIs(t, err, errs.ErrProcessingFailed)
	assert.ErrorIs(t, err, errs.ErrInvalidResizeTarget)
	assert.Empty(t, entries(t, dir))
}

func TestProcessRetriesTimeoutOnce(t *testing.T) {
	dir := t.TempDir()
	staged := filepath.Join(dir, "staged")
	writeJPEG(t, staged, 20, 20)

	adapter := &flakyTools{NativeTools: tools.NewNativeTools(time.Second), stripTimeouts: 1}
	final, err := newPipeline(adapter, 800).Process(context.Background(), staged)
	require.NoError(t, err)
	assert.Equal(t, int32(2), adapter.stripCalls.Load())
	assert.FileExists(t, final)
}

func TestProcessSecondTimeoutEscalates(t *testing.T) {
	dir := t.TempDir()
	staged := filepath.Join(dir, "staged")
	writeJPEG(t, staged, 20, 20)

	adapter := &flakyTools{NativeTools: tools.NewNativeTools(time.Second), stripTimeouts: 5}
	_, err := newPipeline(adapter, 800).Process(context.Background(), staged)
	assert.ErrorIs(t, err, errs.ErrProcessingFailed)
	assert.ErrorIs(t, err, errs.ErrToolTimeout)
	assert.Equal(t, int32(2), adapter.stripCalls.Load())
	assert.Empty(t, entries(t, dir))
}

func TestProcessConversionFailureRemovesTemps(t *testing.T) {
	dir := t.TempDir()
	staged := filepath.Join(dir, "staged")
	writeNoisePNG(t, staged, 30, 30)

	adapter := &flakyTools{NativeTools: tools.NewNativeTools(time.Second), convertErr: errors.New("convert: no encode delegate")}
	_, err := newPipeline(adapter, 800).Process(context.Background(), staged)
	assert.ErrorIs(t, err, errs.ErrProcessingFailed)
	assert.ErrorIs(t, err, errs.ErrConversionFailed)
	assert.Empty(t, entries(t, dir))
}

func TestApplyIfSmaller(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "original")
	candidate := filepath.Join(dir, "candidate")

	require.NoError(t, os.WriteFile(original, []byte("0123456789"), 0o644))
	require.NoError(t, os.WriteFile(candidate, []byte("01234"), 0o644))
	require.NoError(t, ApplyIfSmaller(original, candidate))
	data, err := os.ReadFile(original)
	require.NoError(t, err)
	assert.Equal(t, "01234", string(data))
	assert.NoFileExists(t, candidate)
}

func TestApplyIfSmallerKeepsOriginal(t *testing.T) {
	for _, size := range []int{5, 8} {
		dir := t.TempDir()
		original := filepath.Join(dir, "original")
		candidate := filepath.Join(dir, "candidate")

		require.NoError(t, os.WriteFile(original, []byte("01234"), 0o644))
		require.NoError(t, os.WriteFile(candidate, []byte(strings.Repeat("x", size)), 0o644))
		require.NoError(t, ApplyIfSmaller(original, candidate))

		data, err := os.ReadFile(original)
		require.NoError(t, err)
		assert.Equal(t, "01234", string(data))
		assert.NoFileExists(t, candidate)
	}
}

func TestResizePercent(t *testing.T) {
	cases := []struct {
		w, h, max, want int
	}{
		{1698, 1131, 800, 47},
		{100, 200, 200, 100},
		{100, 200, 400, 100},
		{200, 100, 50, 25},
		{1000, 1000, 999, 99},
	}
	for _, c := range cases {
		got, err := ResizePercent(c.w, c.h, c.max)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%dx%d max %d", c.w, c.h, c.max)
	}

	_, err := ResizePercent(100, 100, 0)
	assert.ErrorIs(t, err, errs.ErrInvalidResizeTarget)
}

// scoredTools reports a fixed similarity for every comparison.
type scoredTools struct {
	*tools.NativeTools
	score float64
}

func (s scoredTools) Compare(context.Context, string, string) (float64, error) {
	return s.score, nil
}

func TestProcessVerifiedConversion(t *testing.T) {
	cases := []struct {
		name   string
		score  float64
		suffix string
	}{
		{"identical", 1, ".jpeg"},
		{"visibly different", 0.5, ".png"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			staged := filepath.Join(dir, "1700000000000-0123456789abcdef")
			writeNoisePNG(t, staged, 300, 200)

			adapter := scoredTools{NativeTools: tools.NewNativeTools(5 * time.Second), score: tc.score}
			p := New(adapter, inspect.New(nil), Options{MaxDimension: 800, VerifyConversion: true})
			final, err := p.Process(context.Background(), staged)
			require.NoError(t, err)
			assert.Equal(t, staged+tc.suffix, final)
			assert.Equal(t, []string{filepath.Base(final)}, entries(t, dir))
		})
	}
}
