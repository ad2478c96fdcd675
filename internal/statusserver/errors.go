package statusserver

import "errors"

// Sentinel errors for status queries.
var (
	ErrNoStore   = errors.New("run journal not configured")
	ErrNoRunning = errors.New("no bot running in this process")
)
