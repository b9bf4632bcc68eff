// Package pipeline turns a staged upload into the stored picture: strip
// metadata, bound its resolution, convert it to the target format and give it
// the matching extension.
package pipeline

import (
	"PicStore/internal/errs"
	"PicStore/internal/inspect"
	"PicStore/internal/storage"
	"PicStore/internal/tools"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
)

// DefaultTargetSubtype is the format pictures are converted to.
const DefaultTargetSubtype = "jpeg"

// Options configure a Pipeline.
type Options struct {
	MaxDimension  int
	TargetSubtype string
	// RetryDelay is the pause before the single retry of a timed out tool call.
	RetryDelay time.Duration
	// VerifyConversion drops a converted candidate that does not look
	// identical to its source.
	VerifyConversion bool
}

type Pipeline struct {
	tools     tools.Adapter
	inspector *inspect.Inspector
	opts      Options
}

func New(adapter tools.Adapter, inspector *inspect.Inspector, opts Options) *Pipeline {
	if opts.TargetSubtype == "" {
		opts.TargetSubtype = DefaultTargetSubtype
	}
	if inspector == nil {
		inspector = inspect.New(nil)
	}
	return &Pipeline{tools: adapter, inspector: inspector, opts: opts}
}

// run is one processing pass over a single file.
type run struct {
	*Pipeline
	path  string
	temps []string
}

// Process runs every step on path and returns the final path, which differs
// from path when the extension was added. On error the staged file and any
// temp file are gone.
func (p *Pipeline) Process(ctx context.Context, path string) (string, error) {
	r := &run{Pipeline: p, path: path}

	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"strip", r.strip},
		{"resize", r.resize},
		{"convert", r.convert},
		{"canonicalize", r.canonicalize},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			r.cleanup()
			log.Warn().Err(err).Str("step", step.name).Str("path", path).Msg("picture processing failed")
			return "", fmt.Errorf("%w: %w", errs.ErrProcessingFailed, err)
		}
	}
	return r.path, nil
}

func (r *run) cleanup() {
	for _, p := range append(r.temps, r.path) {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Error().Err(err).Str("path", p).Msg("remove after failed processing")
		}
	}
}

func (r *run) tempPath(ext string) (string, error) {
	p, err := storage.NewPath(filepath.Dir(r.path), ext)
	if err != nil {
		return "", err
	}
	r.temps = append(r.temps, p)
	return p, nil
}

// call retries a tool invocation once when it timed out.
func (r *run) call(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Attempts(2),
		retry.Delay(r.opts.RetryDelay),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errs.ErrToolTimeout) }),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}

func (r *run) requireImage() (string, error) {
	typ, subtype, err := r.inspector.Detect(r.path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrNotAPicture, err)
	}
	if typ != "image" {
		return "", fmt.Errorf("%w: %s/%s", errs.ErrNotAPicture, typ, subtype)
	}
	return subtype, nil
}

func (r *run) strip(ctx context.Context) error {
	err := r.call(ctx, func() error { return r.tools.StripMetadata(ctx, r.path) })
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrMetadataStripFailed, err)
	}
	return nil
}

func (r *run) resize(ctx context.Context) error {
	if _, err := r.requireImage(); err != nil {
		return err
	}
	if r.opts.MaxDimension == 0 {
		return errs.ErrInvalidResizeTarget
	}

	var width, height int
	err := r.call(ctx, func() error {
		var err error
		width, height, err = r.tools.Resolution(ctx, r.path)
		return err
	})
	if errors.Is(err, errs.ErrToolTimeout) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrNotAPicture, err)
	}

	percent, err := ResizePercent(width, height, r.opts.MaxDimension)
	if err != nil {
		return err
	}
	if percent >= 100 {
		return nil
	}

	dst, err := r.tempPath("")
	if err != nil {
		return err
	}
	if err := r.call(ctx, func() error { return r.tools.Resize(ctx, r.path, dst, percent) }); err != nil {
		return err
	}
	_, err = applyIfSmaller("resize", r.path, dst)
	return err
}

func (r *run) convert(ctx context.Context) error {
	subtype, err := r.requireImage()
	if err != nil {
		return err
	}
	if subtype == r.opts.TargetSubtype {
		return nil
	}

	dst, err := r.tempPath(r.opts.TargetSubtype)
	if err != nil {
		return err
	}
	if err := r.call(ctx, func() error { return r.tools.Convert(ctx, r.path, dst) }); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrConversionFailed, err)
	}
	if r.opts.VerifyConversion {
		var same bool
		err := r.call(ctx, func() error {
			var err error
			same, err = tools.Identical(ctx, r.tools, r.path, dst)
			return err
		})
		if err != nil {
			_ = os.Remove(dst)
			return fmt.Errorf("%w: %w", errs.ErrConversionFailed, err)
		}
		if !same {
			log.Debug().Str("path", r.path).Msg("converted picture differs visibly, keeping original")
			return os.Remove(dst)
		}
	}
	_, err = applyIfSmaller("convert", r.path, dst)
	return err
}

func (r *run) canonicalize(context.Context) error {
	final, err := r.inspector.TestAndRename(r.path, []string{"image"})
	if err != nil {
		return err
	}
	r.path = final
	return nil
}
