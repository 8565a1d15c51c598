// Package rcon maintains authenticated RCON sessions to game servers,
// one per (guild, server name), with reconnection and retry handling.
package rcon

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Descriptor holds the connection parameters for one server.
type Descriptor struct {
	Host     string
	Port     int
	Password string
}

// Resolver looks up the descriptor for a key. It returns an error
// wrapping ErrConfigMissing when no server with that name is configured.
type Resolver func(key Key) (Descriptor, error)

const (
	defaultBackoffBase = time.Second
	defaultBackoffCap  = 30 * time.Second
	defaultMaxAttempts = 3
)

// Registry owns every live session, keyed by (guild, server name).
// Operations on different keys proceed independently; operations on the
// same key are serialized on the session's lock.
type Registry struct {
	resolve Resolver
	dial    Dialer

	backoffBase time.Duration
	backoffCap  time.Duration
	maxAttempts int

	mu       sync.RWMutex
	sessions map[Key]*Session
}

// NewRegistry creates a registry resolving descriptors through resolve.
func NewRegistry(resolve Resolver) *Registry {
	return &Registry{
		resolve:     resolve,
		dial:        Dial,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
		maxAttempts: defaultMaxAttempts,
		sessions:    make(map[Key]*Session),
	}
}

// session returns the session entry for key, creating it if absent.
// Callers verify the key has a descriptor first, so lookups against
// never-configured names leave no entries behind.
func (r *Registry) session(key Key) (*Session, error) {
	if _, err := r.resolve(key); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok {
		s = &Session{key: key}
		r.sessions[key] = s
	}
	return s, nil
}

// acquire returns the session for key with its lock held. A waiter
// that queued behind Remove finds the entry marked removed and starts
// over on a fresh one, so a forgotten session is never reconnected.
func (r *Registry) acquire(key Key) (*Session, error) {
	for {
		s, err := r.session(key)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if !s.removed {
			return s, nil
		}
		s.mu.Unlock()
	}
}

// Connect establishes a fresh authenticated session for key, tearing
// down any existing one first. Concurrent calls for the same key queue
// on the session lock; the second caller finds the first one's result.
func (r *Registry) Connect(key Key) error {
	s, err := r.acquire(key)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()
	return r.connectLocked(s)
}

// Execute obtains a live session for key (connecting if needed), sends
// the command, and awaits the response. On a transport failure it
// reconnects once and retries the send once; a second failure surfaces
// ErrExecutionFailed. Requests on one key never interleave.
func (r *Registry) Execute(key Key, command string) (string, error) {
	s, err := r.acquire(key)
	if err != nil {
		return "", err
	}
	defer s.mu.Unlock()

	if s.State() != StateAuthenticated {
		if err := r.connectLocked(s); err != nil {
			return "", err
		}
	}

	resp, err := s.conn.Execute(command)
	if err == nil {
		return resp, nil
	}

	slog.Warn("Command failed, reconnecting", "server", key, "error", err)
	s.closeLocked()

	if cerr := r.connectLocked(s); cerr != nil {
		return "", fmt.Errorf("%w on %s: reconnect failed: %v", ErrExecutionFailed, key, cerr)
	}
	resp, err = s.conn.Execute(command)
	if err != nil {
		s.closeLocked()
		return "", fmt.Errorf("%w on %s: %v", ErrExecutionFailed, key, err)
	}
	return resp, nil
}

// Remove closes and forgets the session for key. Idempotent; the
// server's stored descriptor is untouched.
func (r *Registry) Remove(key Key) {
	r.mu.Lock()
	s := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()

	if s == nil {
		return
	}
	s.mu.Lock()
	s.removed = true
	s.closeLocked()
	s.mu.Unlock()
}

// All returns a snapshot of every session for health checks.
func (r *Registry) All() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]Status, 0, len(r.sessions))
	for key, s := range r.sessions {
		statuses = append(statuses, Status{Key: key, State: s.State()})
	}
	return statuses
}

// Close tears down every session. Used at shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for key, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		s.removed = true
		s.closeLocked()
		s.mu.Unlock()
	}
}

// connectLocked runs the bounded connect loop for a session. Callers
// hold s.mu, so the backoff sleeps only tasks queued on this key.
func (r *Registry) connectLocked(s *Session) error {
	desc, err := r.resolve(s.key)
	if err != nil {
		return err
	}

	s.closeLocked()

	var lastErr error
	delay := r.backoffBase
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(delay)
			delay *= 2
			if delay > r.backoffCap {
				delay = r.backoffCap
			}
		}
		s.retries = attempt - 1

		conn, err := r.attempt(s, desc)
		if err != nil {
			lastErr = err
			s.lastErr = err
			s.setState(StateDisconnected)
			slog.Warn("Connection attempt failed", "server", s.key, "attempt", attempt, "error", err)
			continue
		}

		s.conn = conn
		s.retries = 0
		s.lastErr = nil
		s.setState(StateAuthenticated)
		slog.Info("Connected", "server", s.key)
		return nil
	}

	s.retries = 0
	s.lastErr = lastErr
	return fmt.Errorf("%w for %s after %d attempts: %v", ErrConnectFailed, s.key, r.maxAttempts, lastErr)
}

// attempt performs one dial plus auth handshake.
func (r *Registry) attempt(s *Session, desc Descriptor) (Conn, error) {
	s.setState(StateConnecting)
	conn, err := r.dial(desc.Host, desc.Port)
	if err != nil {
		return nil, err
	}

	s.setState(StateAuthenticating)
	if err := conn.Auth(desc.Password); err != nil {
		if cerr := conn.Close(); cerr != nil {
			slog.Debug("Error closing connection after failed auth", "server", s.key, "error", cerr)
		}
		return nil, err
	}
	return conn, nil
}
