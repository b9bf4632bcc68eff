package pipeline

import "PicStore/internal/errs"

// ResizePercent returns the integer scale, in percent, that fits the larger of
// width and height into maxDimension. Pictures already small enough get 100.
func ResizePercent(width, height, maxDimension int) (int, error) {
	if maxDimension <= 0 {
		return 0, errs.ErrInvalidResizeTarget
	}
	longest := max(width, height)
	if longest <= maxDimension {
		return 100, nil
	}
	// integer floor of 100*max/longest
	return 100 * maxDimension / longest, nil
}
