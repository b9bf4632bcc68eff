package tools

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/crypto/blake2b"
	_ "golang.org/x/image/webp"
)

// nativeSubtypes are the formats the in-process decoders understand.
var nativeSubtypes = []string{"jpeg", "png", "gif", "bmp", "tiff", "webp"}

// NativeTools implements Adapter in-process. Operations run synchronously on the
// calling goroutine; the deadline is checked before and after each one.
type NativeTools struct {
	Timeout     time.Duration
	JPEGQuality int
}

// NewNativeTools returns an in-process adapter.
func NewNativeTools(timeout time.Duration) *NativeTools {
	return &NativeTools{Timeout: timeout, JPEGQuality: 85}
}

func (t *NativeTools) do(ctx context.Context, fn func() error) error {
	return withTimeout(ctx, t.Timeout, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(); err != nil {
			return err
		}
		return ctx.Err()
	})
}

func decode(path string) (image.Image, imaging.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	img, name, err := image.Decode(f)
	if err != nil {
		return nil, 0, err
	}
	if name == "webp" {
		// no webp encoder, PNG keeps the pixels intact
		return img, imaging.PNG, nil
	}
	format, err := imaging.FormatFromExtension(name)
	if err != nil {
		return nil, 0, err
	}
	return img, format, nil
}

func (t *NativeTools) encode(path string, img image.Image, format imaging.Format) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := imaging.Encode(f, img, format, imaging.JPEGQuality(t.JPEGQuality)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

// Subtypes lists the media subtypes this adapter can process.
func (t *NativeTools) Subtypes() []string {
	return nativeSubtypes
}

// StripMetadata removes metadata blocks from jpeg, png and webp files without
// touching the image data. gif is re-encoded frame by frame; bmp and tiff go
// through a lossless re-encode.
func (t *NativeTools) StripMetadata(ctx context.Context, path string) error {
	return t.do(ctx, func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		_, name, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return err
		}

		var stripped []byte
		switch name {
		case "jpeg":
			stripped, err = stripJPEG(data)
		case "png":
			stripped, err = stripPNG(data)
		case "webp":
			stripped, err = stripWebP(data)
		case "gif":
			stripped, err = stripGIF(data)
		default:
			return t.reencode(path)
		}
		if err != nil {
			return err
		}
		return replaceFile(path, stripped)
	})
}

func (t *NativeTools) reencode(path string) error {
	img, format, err := decode(path)
	if err != nil {
		return err
	}
	tmp := stripTempPath(path)
	if err := t.encode(tmp, img, format); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func stripTempPath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".strip")
}

func replaceFile(path string, data []byte) error {
	tmp := stripTempPath(path)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Resolution decodes the header only.
func (t *NativeTools) Resolution(ctx context.Context, path string) (int, int, error) {
	var width, height int
	err := t.do(ctx, func() error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		cfg, _, err := image.DecodeConfig(f)
		if err != nil {
			return err
		}
		width, height = cfg.Width, cfg.Height
		return nil
	})
	return width, height, err
}

// Resize keeps the source format.
func (t *NativeTools) Resize(ctx context.Context, src, dst string, percent int) error {
	if percent <= 0 {
		return fmt.Errorf("invalid resize percentage %d", percent)
	}
	return t.do(ctx, func() error {
		img, format, err := decode(src)
		if err != nil {
			return err
		}
		width := img.Bounds().Dx() * percent / 100
		if width < 1 {
			width = 1
		}
		resized := imaging.Resize(img, width, 0, imaging.Lanczos)
		return t.encode(dst, resized, format)
	})
}

// Convert encodes src in the format named by dst's extension.
func (t *NativeTools) Convert(ctx context.Context, src, dst string) error {
	return t.do(ctx, func() error {
		format, err := imaging.FormatFromFilename(dst)
		if err != nil {
			return err
		}
		img, _, err := decode(src)
		if err != nil {
			return err
		}
		return t.encode(dst, img, format)
	})
}

// Compare computes the normalized cross correlation over luminance.
func (t *NativeTools) Compare(ctx context.Context, a, b string) (float64, error) {
	var ncc float64
	err := t.do(ctx, func() error {
		imgA, _, err := decode(a)
		if err != nil {
			return err
		}
		imgB, _, err := decode(b)
		if err != nil {
			return err
		}
		if imgA.Bounds().Size() != imgB.Bounds().Size() {
			return fmt.Errorf("image sizes differ: %v vs %v", imgA.Bounds().Size(), imgB.Bounds().Size())
		}
		ncc = normalizedCrossCorrelation(imaging.Grayscale(imgA), imaging.Grayscale(imgB))
		return nil
	})
	return ncc, err
}

func normalizedCrossCorrelation(a, b *image.NRGBA) float64 {
	n := float64(len(a.Pix) / 4)
	var sumA, sumB float64
	for i := 0; i < len(a.Pix); i += 4 {
		sumA += float64(a.Pix[i])
		sumB += float64(b.Pix[i])
	}
	meanA, meanB := sumA/n, sumB/n

	var cross, varA, varB float64
	for i := 0; i < len(a.Pix); i += 4 {
		da := float64(a.Pix[i]) - meanA
		db := float64(b.Pix[i]) - meanB
		cross += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		// flat pictures correlate only with an identical flat picture
		if varA == varB && meanA == meanB {
			return 1
		}
		return 0
	}
	return cross / math.Sqrt(varA*varB)
}

// Hash returns the BLAKE2b-256 digest of the file.
func (t *NativeTools) Hash(ctx context.Context, path string) (string, error) {
	var digest string
	err := t.do(ctx, func() error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		h, err := blake2b.New256(nil)
		if err != nil {
			return err
		}
		if _, err := io.Copy(h, f); err != nil {
			return err
		}
		digest = strings.ToLower(hex.EncodeToString(h.Sum(nil)))
		return nil
	})
	return digest, err
}
