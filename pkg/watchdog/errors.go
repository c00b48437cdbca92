package watchdog

import "errors"

var (
	// ErrIdleTimeout is passed to CloseFunc when no data arrived within the
	// idle timeout window.
	ErrIdleTimeout = errors.New("watchdog: idle timeout exceeded")

	// ErrTooManyExceptions is passed to CloseFunc when the exception count
	// exceeded MaxExceptions.
	ErrTooManyExceptions = errors.New("watchdog: exception threshold exceeded")
)
