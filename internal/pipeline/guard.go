package pipeline

import (
	"os"

	"github.com/rs/zerolog/log"
)

// ApplyIfSmaller replaces original with candidate only when candidate is
// strictly smaller. Otherwise candidate is removed and original is untouched.
func ApplyIfSmaller(original, candidate string) error {
	_, err := applyIfSmaller("", original, candidate)
	return err
}

func applyIfSmaller(op, original, candidate string) (bool, error) {
	before, err := os.Stat(original)
	if err != nil {
		_ = os.Remove(candidate)
		return false, err
	}
	after, err := os.Stat(candidate)
	if err != nil {
		_ = os.Remove(candidate)
		return false, err
	}

	if after.Size() >= before.Size() {
		log.Debug().Str("op", op).
			Int64("original", before.Size()).
			Int64("candidate", after.Size()).
			Msg("candidate not smaller, keeping original")
		return false, os.Remove(candidate)
	}

	if err := os.Rename(candidate, original); err != nil {
		_ = os.Remove(candidate)
		return false, err
	}
	saved := before.Size() - after.Size()
	log.Debug().Str("op", op).
		Int64("saved", saved).
		Float64("percent", float64(saved)*100/float64(before.Size())).
		Msg("applied smaller candidate")
	return true, nil
}
