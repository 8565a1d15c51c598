package rcon

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of a session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Key identifies one session: a guild plus one of its server names.
type Key struct {
	GuildID string
	Server  string
}

func (k Key) String() string {
	return k.GuildID + "/" + k.Server
}

// Session is a single authenticated channel to one game server. It is
// owned by the Registry; all operations on one key are serialized on mu.
type Session struct {
	key   Key
	state atomic.Int32

	mu      sync.Mutex
	conn    Conn
	retries int
	lastErr error

	// removed is set under mu when the registry forgets this entry.
	// Waiters queued on mu must not reconnect a removed session.
	removed bool
}

// State reads the session state without taking the session lock, so
// snapshots are not blocked by an in-flight connect.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// closeLocked closes the transport best-effort. Callers hold s.mu.
func (s *Session) closeLocked() {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			slog.Debug("Error closing connection", "server", s.key, "error", err)
		}
		s.conn = nil
	}
	s.setState(StateDisconnected)
}

// Status is an immutable snapshot of a session for health checks.
type Status struct {
	Key   Key
	State State
}
