package server

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/memvault/memvault/internal/domain"
	"github.com/memvault/memvault/internal/infrastructure/logging"
)

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	// StatePending means the registry entry exists but no push stream is
	// attached. Fresh sessions and sessions whose stream dropped are pending.
	StatePending SessionState = "pending"

	// StateActive means a push stream is currently attached.
	StateActive SessionState = "active"

	// StateClosed is terminal. Closed session ids are never resurrected.
	StateClosed SessionState = "closed"
)

// Session is a logical conversation scope identified by an opaque id. It owns
// one notification queue and has at most one attached push stream. The
// registry exclusively owns creation and destruction; the dispatcher holds a
// transient attachment while a stream is open.
type Session struct {
	id     string
	clock  clockwork.Clock
	logger *logging.Logger

	mu           sync.Mutex
	state        SessionState
	initialized  bool
	capabilities map[string]any
	lastActivity time.Time
	queue        *notificationQueue
	closed       chan struct{}
}

func newSession(id string, queueCapacity int, clock clockwork.Clock, logger *logging.Logger) *Session {
	return &Session{
		id:           id,
		clock:        clock,
		logger:       logger.With(logging.Fields{"session_id": id}),
		state:        StatePending,
		lastActivity: clock.Now(),
		queue:        newNotificationQueue(queueCapacity),
		closed:       make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// SessionID implements domain.Caller.
func (s *Session) SessionID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Touch refreshes the activity timestamp. Called on every request, delivered
// notification, and heartbeat.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.clock.Now()
}

// LastActivity returns the most recent activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Initialized reports whether the protocol handshake has completed.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// MarkInitialized records a completed handshake and the client capabilities
// negotiated by it.
func (s *Session) MarkInitialized(capabilities map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	if capabilities != nil {
		s.capabilities = capabilities
	}
}

// Notify implements domain.Caller: it enqueues a server notification into
// this session's queue. Enqueueing never blocks; if the session is closed
// the notification is discarded.
func (s *Session) Notify(method string, params map[string]any) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()

	if q == nil {
		s.logger.Debug("notification discarded, session closed", logging.Fields{"method": method})
		return
	}
	if q.Enqueue(domain.NewNotification(method, params)) {
		s.logger.Warn("notification queue full, dropped oldest", logging.Fields{"method": method})
	}
}

// Queue returns the session's notification queue, or nil once closed.
func (s *Session) Queue() *notificationQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue
}

// Done returns a channel closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// attach transitions the session to active. Only one stream may be attached
// at a time.
func (s *Session) attach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return domain.Errorf(domain.CodeSessionConflict, "session %q is closed", s.id)
	case StateActive:
		return domain.Errorf(domain.CodeSessionConflict, "session %q already has an attached stream", s.id)
	}
	s.state = StateActive
	s.lastActivity = s.clock.Now()
	return nil
}

// detach returns the session to pending and refreshes activity, starting the
// re-attach grace window.
func (s *Session) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return
	}
	s.state = StatePending
	s.lastActivity = s.clock.Now()
}

// close transitions to closed and releases the queue. Idempotent. Undelivered
// notifications are discarded with the queue.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	s.queue = nil
	close(s.closed)
}

// SessionInfo is a point-in-time snapshot used by the admin listing.
type SessionInfo struct {
	ID           string       `json:"session_id"`
	State        SessionState `json:"state"`
	Initialized  bool         `json:"initialized"`
	LastActivity time.Time    `json:"last_activity"`
	QueueLength  int          `json:"queue_length"`
	Dropped      int          `json:"dropped"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := SessionInfo{
		ID:           s.id,
		State:        s.state,
		Initialized:  s.initialized,
		LastActivity: s.lastActivity,
	}
	if s.queue != nil {
		info.QueueLength = s.queue.Len()
		info.Dropped = s.queue.Dropped()
	}
	return info
}
