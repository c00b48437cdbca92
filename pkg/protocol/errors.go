package protocol

import "errors"

var (
	// ErrHeaderMalformed is returned when an 80-byte block header fails to
	// match the expected field layout.
	ErrHeaderMalformed = errors.New("protocol: malformed block header")

	// ErrBodyLengthOutOfRange is returned when a V2 /DL length falls outside
	// the 1..1024 range.
	ErrBodyLengthOutOfRange = errors.New("protocol: body length out of range")

	// ErrServerListUnparseable is returned when a server-list frame's content
	// contains no parseable host:port pairs.
	ErrServerListUnparseable = errors.New("protocol: unable to parse server list")

	// ErrInvalidServerAddress is returned by ParseServer for a malformed
	// "host:port" string or an out-of-range port.
	ErrInvalidServerAddress = errors.New("protocol: invalid server address")
)
