package inspect

import (
	"PicStore/internal/errs"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 8, 8))))
	require.NoError(t, f.Close())
}

func TestDetectIgnoresExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "picture.txt")
	writePNG(t, path)

	typ, subtype, err := New(nil).Detect(path)
	require.NoError(t, err)
	assert.Equal(t, "image", typ)
	assert.Equal(t, "png", subtype)
}

func TestDetectPlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.png")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a png"), 0o644))

	typ, subtype, err := New(nil).Detect(path)
	require.NoError(t, err)
	assert.Equal(t, "text", typ)
	assert.Equal(t, "plain", subtype)
}

func TestAccepts(t *testing.T) {
	dir := t.TempDir()
	pic := filepath.Join(dir, "pic")
	writePNG(t, pic)
	text := filepath.Join(dir, "text")
	require.NoError(t, os.WriteFile(text, []byte("hello"), 0o644))

	inspector := New(nil)
	assert.True(t, inspector.Accepts(pic, []string{"image"}))
	assert.False(t, inspector.Accepts(text, []string{"image"}))
	assert.False(t, inspector.Accepts(filepath.Join(dir, "missing"), []string{"image"}))
}

func TestAcceptsFormat(t *testing.T) {
	dir := t.TempDir()
	pic := filepath.Join(dir, "pic")
	writePNG(t, pic)
	svg := filepath.Join(dir, "svg")
	require.NoError(t, os.WriteFile(svg, []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`), 0o644))

	inspector := New(nil)
	decodable := []string{"jpeg", "png", "webp"}
	assert.True(t, inspector.AcceptsFormat(pic, []string{"image"}, decodable))
	assert.True(t, inspector.AcceptsFormat(svg, []string{"image"}, nil))
	assert.False(t, inspector.AcceptsFormat(svg, []string{"image"}, decodable))
	assert.False(t, inspector.AcceptsFormat(pic, []string{"video"}, decodable))
}

func TestCanonicalizeExtension(t *testing.T) {
	dir := t.TempDir()
	inspector := New(nil)

	bare := filepath.Join(dir, "1700000000000-abcd")
	require.NoError(t, os.WriteFile(bare, []byte("x"), 0o644))
	renamed, err := inspector.CanonicalizeExtension(bare, "png")
	require.NoError(t, err)
	assert.Equal(t, bare+".png", renamed)
	assert.FileExists(t, renamed)
	assert.NoFileExists(t, bare)

	upper := filepath.Join(dir, "photo.PNG")
	require.NoError(t, os.WriteFile(upper, []byte("x"), 0o644))
	same, err := inspector.CanonicalizeExtension(upper, "png")
	require.NoError(t, err)
	assert.Equal(t, upper, same)
	assert.FileExists(t, upper)
}

func TestCanonicalizeExtensionMissingFile(t *testing.T) {
	_, err := New(nil).CanonicalizeExtension(filepath.Join(t.TempDir(), "missing"), "jpeg")
	assert.Error(t, err)
}

func TestTestAndRename(t *testing.T) {
	dir := t.TempDir()
	inspector := New(nil)

	pic := filepath.Join(dir, "upload")
	writePNG(t, pic)
	renamed, err := inspector.TestAndRename(pic, []string{"image"})
	require.NoError(t, err)
	assert.Equal(t, pic+".png", renamed)

	text := filepath.Join(dir, "notes")
	require.NoError(t, os.WriteFile(text, []byte("hello"), 0o644))
	_, err = inspector.TestAndRename(text, []string{"image"})
	assert.ErrorIs(t, err, errs.ErrNotAPicture)
}
