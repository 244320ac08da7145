package pipeline

import "github.com/pkg/errors"

var (
	// ErrInvalidConfig is returned for a malformed resolution or an empty camera name.
	ErrInvalidConfig = errors.New("invalid pipeline config")

	// ErrCameraUnavailable is returned when the camera cannot be resolved or its session cannot be
	// built. Construction is never retried.
	ErrCameraUnavailable = errors.New("camera unavailable")

	// ErrInvalidState is returned by a lifecycle call the current state does not permit.
	ErrInvalidState = errors.New("invalid pipeline state")
)
