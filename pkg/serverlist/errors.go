package serverlist

import "errors"

// ErrNoServers is returned by GetNextServer when the manager's combined
// server pool is empty.
var ErrNoServers = errors.New("serverlist: no servers configured")
