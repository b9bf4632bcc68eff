package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	resolutionRegex = regexp.MustCompile(`([0-9]+)x([0-9]+)`)
	hashRegex       = regexp.MustCompile(`^([0-9a-f]{64})\b`)
	mimeRegex       = regexp.MustCompile(`^(\w+)/([\w.+-]+)`)
	nccRegex        = regexp.MustCompile(`([0-9]*\.?[0-9]+(?:e[-+]?[0-9]+)?)`)
)

// ExecTools runs the command line tools. Only exit codes and stdout are trusted.
type ExecTools struct {
	Timeout time.Duration
}

// NewExecTools returns an adapter over exiftool, ImageMagick, file and sha256sum.
func NewExecTools(timeout time.Duration) *ExecTools {
	return &ExecTools{Timeout: timeout}
}

func (t *ExecTools) run(ctx context.Context, name string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	err := withTimeout(ctx, t.Timeout, func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		return cmd.Run()
	})
	return stdout.String(), stderr.String(), err
}

// StripMetadata runs `exiftool -overwrite_original -all= path`.
func (t *ExecTools) StripMetadata(ctx context.Context, path string) error {
	if _, _, err := t.run(ctx, "exiftool", "-overwrite_original", "-all=", path); err != nil {
		return fmt.Errorf("exiftool: %w", err)
	}
	return nil
}

// Resolution reads exiftool's "Image Size" tag.
func (t *ExecTools) Resolution(ctx context.Context, path string) (int, int, error) {
	out, _, err := t.run(ctx, "exiftool", "-s3", "-ImageSize", path)
	if err != nil {
		return 0, 0, fmt.Errorf("exiftool: %w", err)
	}
	return ParseResolution(out)
}

// Resize runs `convert src -resize N% dst`.
func (t *ExecTools) Resize(ctx context.Context, src, dst string, percent int) error {
	if _, _, err := t.run(ctx, "convert", src, "-resize", strconv.Itoa(percent)+"%", dst); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	return nil
}

// Convert runs `convert src dst`.
func (t *ExecTools) Convert(ctx context.Context, src, dst string) error {
	if _, _, err := t.run(ctx, "convert", src, dst); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	return nil
}

// Compare runs `compare -metric NCC a b null:`. ImageMagick prints the metric on
// stderr and exits 1 when the pictures differ, so only exit codes above 1 fail.
func (t *ExecTools) Compare(ctx context.Context, a, b string) (float64, error) {
	_, stderr, err := t.run(ctx, "compare", "-metric", "NCC", a, b, "null:")
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok || exitErr.ExitCode() > 1 {
			return 0, fmt.Errorf("compare: %w", err)
		}
	}
	return ParseNCC(stderr)
}

// Hash runs `sha256sum path`.
func (t *ExecTools) Hash(ctx context.Context, path string) (string, error) {
	out, _, err := t.run(ctx, "sha256sum", path)
	if err != nil {
		return "", fmt.Errorf("sha256sum: %w", err)
	}
	return ParseHash(out)
}

// Detect runs `file --mime-type -b path`, it never looks at the file name.
func (t *ExecTools) Detect(path string) (string, string, error) {
	out, _, err := t.run(context.Background(), "file", "--mime-type", "-b", path)
	if err != nil {
		return "", "", fmt.Errorf("file: %w", err)
	}
	return ParseMimeType(out)
}

// ParseResolution extracts "WxH" from tool output.
func ParseResolution(out string) (int, int, error) {
	match := resolutionRegex.FindStringSubmatch(out)
	if match == nil {
		return 0, 0, fmt.Errorf("no resolution in output %q", strings.TrimSpace(out))
	}
	width, _ := strconv.Atoi(match[1])
	height, _ := strconv.Atoi(match[2])
	return width, height, nil
}

// ParseHash extracts the digest from sha256sum output.
func ParseHash(out string) (string, error) {
	match := hashRegex.FindStringSubmatch(strings.TrimSpace(out))
	if match == nil {
		return "", fmt.Errorf("no digest in output %q", strings.TrimSpace(out))
	}
	return match[1], nil
}

// ParseMimeType splits "type/subtype".
func ParseMimeType(out string) (string, string, error) {
	match := mimeRegex.FindStringSubmatch(strings.TrimSpace(out))
	if match == nil {
		return "", "", fmt.Errorf("no mime type in output %q", strings.TrimSpace(out))
	}
	return match[1], match[2], nil
}

// ParseNCC reads the metric printed by compare.
func ParseNCC(out string) (float64, error) {
	match := nccRegex.FindStringSubmatch(strings.TrimSpace(out))
	if match == nil {
		return 0, fmt.Errorf("no metric in output %q", strings.TrimSpace(out))
	}
	return strconv.ParseFloat(match[1], 64)
}
