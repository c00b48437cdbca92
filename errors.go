package byteblaster

import "errors"

// ErrEmailRequired is returned by New when Options.Email is empty after
// trimming.
var ErrEmailRequired = errors.New("byteblaster: email is required")
