package domain

import "errors"

// Sentinel error categories. Call sites wrap them with context ("%w: ..."); callers classify
// with errors.Is or Category. Any other error is an infrastructure failure.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
)

// Category names the error category of err: not_found, validation, forbidden, conflict or
// infrastructure. Returns "" for a nil error.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "infrastructure"
	}
}
