package models

import "errors"

// Error kinds shared by the store, service and api layers. Callers wrap
// them with fmt.Errorf("%w: ...") and classify with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("not authorized")
	ErrUnauthenticated = errors.New("authentication required")
	ErrOutOfStock      = errors.New("product is sold out")
	ErrInvalidOTP      = errors.New("invalid or expired otp")
	ErrRateLimited     = errors.New("too many requests")

	// ErrConflict reports a lost compare-and-set or a unique key collision
	ErrConflict = errors.New("conflict")
)
