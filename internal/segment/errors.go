package segment

import "errors"

// Error kinds reported by the overlay pipeline. Callers match them with
// errors.Is; the concrete error always wraps one of these with detail.
var (
	ErrInvalidImage       = errors.New("invalid image")
	ErrModelLoad          = errors.New("model load failed")
	ErrModelInvocation    = errors.New("model invocation failed")
	ErrInvalidModelOutput = errors.New("invalid model output")
)

func Kind(err error) error {
	for _, kind := range []error{ErrInvalidImage, ErrModelLoad, ErrModelInvocation, ErrInvalidModelOutput} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
