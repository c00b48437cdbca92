package supervisor

import "errors"

// ErrAlreadyRunning is returned by Start when the supervisor's reconnect
// loop is already active.
var ErrAlreadyRunning = errors.New("supervisor: already running")
