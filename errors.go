package mailprobe

import (
	"errors"

	"github.com/optimode/mailprobe/internal/coordinator"
)

var (
	// ErrMissingEmail is returned when Verify is called with an empty
	// address.
	ErrMissingEmail = errors.New("mailprobe: missing email address")

	// ErrInvalidConfig is returned when the Verifier is constructed
	// without SMTPHeloDomain or ProbeEmail.
	ErrInvalidConfig = errors.New("mailprobe: Config requires SMTPHeloDomain and ProbeEmail")

	// ErrClosed is returned for calls after Close.
	ErrClosed = errors.New("mailprobe: verifier is closed")

	// ErrTooManyConcurrent is returned when the per-domain admission
	// gate is closed; callers should retry later.
	ErrTooManyConcurrent = coordinator.ErrTooManyConcurrent
)
