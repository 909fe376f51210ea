package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/tmaxmax/go-sse"

	"github.com/memvault/memvault/internal/domain"
	"github.com/memvault/memvault/internal/infrastructure/logging"
)

// Server notification methods emitted by the dispatcher itself.
const (
	methodConnected    = "session.connected"
	methodHeartbeat    = "session.heartbeat"
	methodDisconnected = "session.disconnected"
)

// Dispatcher binds push streams to sessions, drains their notification queues,
// and emits liveness heartbeats. It holds a transient attachment to a session
// while its stream is open; the registry retains ownership.
type Dispatcher struct {
	registry  *Registry
	clock     clockwork.Clock
	heartbeat time.Duration
	logger    *logging.Logger
}

// NewDispatcher creates a stream dispatcher emitting heartbeats at the given
// fixed interval.
func NewDispatcher(registry *Registry, clock clockwork.Clock, heartbeat time.Duration, logger *logging.Logger) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		registry:  registry,
		clock:     clock,
		heartbeat: heartbeat,
		logger:    logger,
	}
}

// Attach upgrades the request to a server-sent event stream bound to
// sessionID and blocks until the client disconnects, the session is closed,
// or a write fails. Unknown session ids are created on attach; an empty id
// makes the server allocate one, announced to the client by the
// session.connected handshake. An error is returned only before any bytes
// have been written, so the HTTP layer can still answer with a status code.
func (d *Dispatcher) Attach(w http.ResponseWriter, r *http.Request, sessionID string) error {
	sess, err := d.registry.Attach(sessionID)
	if err != nil {
		return err
	}
	defer d.registry.Detach(sess.ID())

	queue := sess.Queue()
	if queue == nil {
		return domain.Errorf(domain.CodeSessionNotFound, "session %q not found", sess.ID())
	}

	sink, err := sse.Upgrade(w, r)
	if err != nil {
		return fmt.Errorf("failed to upgrade stream: %w", err)
	}

	logger := d.logger.With(logging.Fields{"session_id": sess.ID()})
	logger.Info("stream attached")

	// The handshake: the first event on every stream carries the effective
	// session id.
	connected := domain.NewNotification(methodConnected, map[string]any{
		"session_id": sess.ID(),
		"timestamp":  d.now(),
		"protocol":   "jsonrpc-sse/2.0",
	})
	if err := d.send(sink, connected); err != nil {
		logger.Warn("failed to write connected event", logging.Fields{"err": err.Error()})
		return nil
	}

	ticker := d.clock.NewTicker(d.heartbeat)
	defer ticker.Stop()

	// Drain loop. A single goroutine selects over the queue, the heartbeat
	// ticker, and termination signals, so queue draining and heartbeats
	// interleave on the sink without reordering.
	for {
		select {
		case <-r.Context().Done():
			logger.Info("stream detached, client disconnected")
			return nil
		case <-sess.Done():
			// Best effort: the client may still be listening when the
			// session is closed administratively.
			d.sendDisconnected(sink, sess.ID())
			logger.Info("stream detached, session closed")
			return nil
		case n := <-queue.C():
			if err := d.send(sink, n); err != nil {
				logger.Warn("stream write failed, detaching", logging.Fields{"err": err.Error()})
				return nil
			}
			sess.Touch()
		case <-ticker.Chan():
			hb := domain.NewNotification(methodHeartbeat, map[string]any{
				"session_id": sess.ID(),
				"timestamp":  d.now(),
			})
			if err := d.send(sink, hb); err != nil {
				logger.Warn("heartbeat write failed, detaching", logging.Fields{"err": err.Error()})
				return nil
			}
			sess.Touch()
		}
	}
}

func (d *Dispatcher) send(sink *sse.Session, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := &sse.Message{Type: sse.Type(eventType(n.Method))}
	msg.AppendData(string(data))

	if err := sink.Send(msg); err != nil {
		return err
	}
	return sink.Flush()
}

func (d *Dispatcher) sendDisconnected(sink *sse.Session, sessionID string) {
	_ = d.send(sink, domain.NewNotification(methodDisconnected, map[string]any{
		"session_id": sessionID,
		"timestamp":  d.now(),
	}))
}

func (d *Dispatcher) now() string {
	return d.clock.Now().UTC().Format(time.RFC3339)
}

// eventType maps a notification method to its SSE event type. Lifecycle
// notifications get dedicated event types; everything else is a message.
func eventType(method string) string {
	switch method {
	case methodConnected:
		return "connected"
	case methodHeartbeat:
		return "heartbeat"
	case methodDisconnected:
		return "disconnected"
	default:
		return "message"
	}
}
