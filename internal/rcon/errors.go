package rcon

import "errors"

// Sentinel errors surfaced to admin commands and the dispatcher.
// Callers classify with errors.Is.
var (
	// ErrConfigMissing indicates no server descriptor exists for the key.
	ErrConfigMissing = errors.New("no server configured")

	// ErrConnectFailed indicates the connect retry budget was exhausted.
	ErrConnectFailed = errors.New("connect failed")

	// ErrExecutionFailed indicates a command failed after one reconnect attempt.
	ErrExecutionFailed = errors.New("command execution failed")

	// ErrAuthFailed indicates the server rejected the RCON password.
	ErrAuthFailed = errors.New("authentication rejected")
)
