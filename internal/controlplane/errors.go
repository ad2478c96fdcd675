package controlplane

import (
	"errors"
	"fmt"
)

// Sentinel errors for control plane calls.
var (
	ErrUnauthorized      = errors.New("control plane rejected api key")
	ErrBotNotFound       = errors.New("bot not found")
	ErrHeartbeatRejected = errors.New("heartbeat not acknowledged")
)

// APIError is a non-2xx response the client has no sentinel for.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Body)
}
