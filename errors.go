package camstack

import "github.com/pkg/errors"

var (
	// ErrCameraNotRunning is returned when a request is queued to a camera
	// that has not been started.
	ErrCameraNotRunning = errors.New("camera is not running")

	// ErrCameraBusy is returned when acquiring a camera that is already in
	// use, or reconfiguring one that is running.
	ErrCameraBusy = errors.New("camera is busy")

	// ErrInvalidRequest is returned when a request does not carry exactly
	// one buffer for each of the camera's configured streams.
	ErrInvalidRequest = errors.New("request does not match configured streams")

	// ErrProtocolViolation reports a completion arriving for a buffer or
	// request that the orchestrator is not expecting. This indicates a bug
	// in the pipeline handler, not a recoverable runtime condition.
	ErrProtocolViolation = errors.New("completion protocol violation")
)
