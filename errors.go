package psxgpu

import "errors"

// Errors returned by GPU configuration and persistence.
var (
	// ErrInvalidScale is returned for a scale factor below 1.
	ErrInvalidScale = errors.New("psxgpu: invalid scale")

	// ErrScaleTooLarge is returned for a scale factor the backend cannot
	// allocate. The previous scale stays in effect.
	ErrScaleTooLarge = errors.New("psxgpu: scale too large")

	// ErrBusy is returned by MarshalBinary while a command or transfer is
	// in progress.
	ErrBusy = errors.New("psxgpu: command in progress")

	// ErrBadState is returned by UnmarshalBinary for malformed data.
	ErrBadState = errors.New("psxgpu: bad saved state")
)
