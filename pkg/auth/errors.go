package auth

import "errors"

// ErrEmptyEmail is returned by New when the trimmed email is empty.
var ErrEmptyEmail = errors.New("auth: email must not be empty")
