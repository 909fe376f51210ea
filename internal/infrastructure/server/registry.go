package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/memvault/memvault/internal/domain"
	"github.com/memvault/memvault/internal/infrastructure/logging"
)

// Registry creates, looks up, and destroys sessions. It exclusively owns all
// session state; nothing outside this type touches the session table.
// Mutations on a single session are serialized; operations on distinct
// sessions proceed in parallel.
type Registry struct {
	clock    clockwork.Clock
	logger   *logging.Logger
	queueCap int
	ttl      time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Clock drives activity timestamps and reaping. Defaults to the real clock.
	Clock clockwork.Clock

	Logger *logging.Logger

	// QueueCapacity bounds each session's notification queue.
	QueueCapacity int

	// SessionTTL is the inactivity threshold for reaping sessions with no
	// attached stream. It is also the re-attach grace window after a
	// stream disconnect.
	SessionTTL time.Duration
}

// NewRegistry creates a session registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &Registry{
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		queueCap: cfg.QueueCapacity,
		ttl:      cfg.SessionTTL,
		sessions: make(map[string]*Session),
	}
}

// Create returns the session with requestedID, creating a pending one when it
// does not exist. An empty requestedID allocates a fresh high-entropy id.
// Requesting the id of a closed session fails with a session conflict: closed
// ids are never resurrected.
func (r *Registry) Create(requestedID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if requestedID != "" {
		if s, ok := r.sessions[requestedID]; ok {
			if s.State() == StateClosed {
				return nil, domain.Errorf(domain.CodeSessionConflict, "session %q is closed", requestedID)
			}
			return s, nil
		}
	}
	return r.createLocked(requestedID), nil
}

func (r *Registry) createLocked(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	s := newSession(id, r.queueCap, r.clock, r.logger)
	r.sessions[id] = s
	r.logger.Info("session created", logging.Fields{"session_id": id})
	return s
}

// Get returns the session with the given id. Unknown and closed ids both
// yield a session-not-found error.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()

	if !ok || s.State() == StateClosed {
		return nil, domain.Errorf(domain.CodeSessionNotFound, "session %q not found", id)
	}
	return s, nil
}

// Attach binds a push stream to the session, creating the session when the id
// is unknown (create-on-attach) or allocating an id when none is supplied.
// Fails with a session conflict when a stream is already attached or the
// session is closed.
func (r *Registry) Attach(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok || id == "" {
		s = r.createLocked(id)
	}
	r.mu.Unlock()

	if err := s.attach(); err != nil {
		return nil, err
	}
	return s, nil
}

// Detach releases the stream attachment, returning the session to pending.
// The session survives until the inactivity TTL elapses without a re-attach.
func (r *Registry) Detach(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		s.detach()
	}
}

// Close transitions the session to closed and releases its queue. Idempotent;
// closing an unknown id is a no-op.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	s.close()
	r.logger.Info("session closed", logging.Fields{"session_id": id})
}

// Reap closes sessions with no attached stream whose inactivity exceeds the
// TTL, and forgets closed tombstones past the same threshold. Active sessions
// are never reaped.
func (r *Registry) Reap() int {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	reaped := 0
	for id, s := range r.sessions {
		info := s.Info()
		if now.Sub(info.LastActivity) < r.ttl {
			continue
		}
		switch info.State {
		case StatePending:
			s.close()
			delete(r.sessions, id)
			reaped++
			r.logger.Info("session reaped", logging.Fields{"session_id": id})
		case StateClosed:
			delete(r.sessions, id)
		}
	}
	return reaped
}

// RunReaper periodically reaps stale sessions until the context is cancelled.
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.Reap()
		}
	}
}

// List returns snapshots of all known sessions, ordered by id.
func (r *Registry) List() []SessionInfo {
	r.mu.Lock()
	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.Info())
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
