package inspect

import (
	"PicStore/internal/errs"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Detector reports a file's media type from its content.
type Detector interface {
	Detect(path string) (string, string, error)
}

// MagicDetector sniffs magic bytes with mimetype.
type MagicDetector struct{}

// Detect returns (type, subtype), e.g. ("image", "png").
func (MagicDetector) Detect(path string) (string, string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", "", err
	}
	value, _, _ := strings.Cut(mtype.String(), ";")
	typ, subtype, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok {
		return "", "", fmt.Errorf("unexpected media type %q", mtype.String())
	}
	return typ, subtype, nil
}

// Inspector classifies files. It never trusts the client supplied name.
type Inspector struct {
	detector Detector
}

// New returns an Inspector; a nil detector means MagicDetector.
func New(detector Detector) *Inspector {
	if detector == nil {
		detector = MagicDetector{}
	}
	return &Inspector{detector: detector}
}

// Detect returns the media type and subtype of path.
func (i *Inspector) Detect(path string) (string, string, error) {
	return i.detector.Detect(path)
}

// Accepts reports whether path's media type is in allowed.
// Detection failures are not the caller's problem, they just mean no.
func (i *Inspector) Accepts(path string, allowed []string) bool {
	return i.AcceptsFormat(path, allowed, nil)
}

// AcceptsFormat is Accepts with an additional subtype allow-list; an empty
// subtypes list accepts any subtype.
func (i *Inspector) AcceptsFormat(path string, allowed, subtypes []string) bool {
	typ, subtype, err := i.detector.Detect(path)
	if err != nil {
		return false
	}
	if !slices.Contains(allowed, typ) {
		return false
	}
	return len(subtypes) == 0 || slices.Contains(subtypes, subtype)
}

// CanonicalizeExtension renames path to carry ".subtype" unless it already
// ends with it (case-insensitive). Returns the resulting path.
func (i *Inspector) CanonicalizeExtension(path, subtype string) (string, error) {
	if subtype == "" {
		return path, nil
	}
	ext := "." + subtype
	if strings.HasSuffix(strings.ToLower(filepath.Base(path)), strings.ToLower(ext)) {
		return path, nil
	}
	newPath := path + ext
	if err := os.Rename(path, newPath); err != nil {
		return "", err
	}
	return newPath, nil
}

// TestAndRename rejects files outside allowed and gives the rest their extension.
func (i *Inspector) TestAndRename(path string, allowed []string) (string, error) {
	typ, subtype, err := i.detector.Detect(path)
	if err != nil {
		return "", err
	}
	if !slices.Contains(allowed, typ) {
		return "", fmt.Errorf("%w: %s/%s", errs.ErrNotAPicture, typ, subtype)
	}
	return i.CanonicalizeExtension(path, subtype)
}
