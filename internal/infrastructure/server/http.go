package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/memvault/memvault/internal/domain"
	"github.com/memvault/memvault/internal/infrastructure/logging"
)

// Transport exposes the dual-channel HTTP surface: a per-session SSE push
// stream for server-originated notifications, plus synchronous request and
// batch endpoints for client-to-server JSON-RPC.
type Transport struct {
	registry   *Registry
	dispatcher *Dispatcher
	processor  *Processor
	logger     *logging.Logger
}

// NewTransport creates the HTTP transport.
func NewTransport(registry *Registry, dispatcher *Dispatcher, processor *Processor, logger *logging.Logger) *Transport {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Transport{
		registry:   registry,
		dispatcher: dispatcher,
		processor:  processor,
		logger:     logger,
	}
}

// Router mounts the transport endpoints.
func (t *Transport) Router() chi.Router {
	r := chi.NewRouter()
	r.Route("/mcp", func(r chi.Router) {
		r.Get("/stream", t.handleStream)
		r.Get("/stream/{sessionID}", t.handleStream)
		r.Post("/request/{sessionID}", t.handleRequest)
		r.Post("/batch/{sessionID}", t.handleBatch)
		r.Get("/sessions", t.handleListSessions)
		r.Delete("/sessions/{sessionID}", t.handleCloseSession)
	})
	return r
}

// handleStream attaches the push stream. With no session id in the path the
// server allocates one and announces it in the session.connected handshake.
func (t *Transport) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := t.dispatcher.Attach(w, r, sessionID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrSessionConflict) {
			status = http.StatusConflict
		} else if errors.Is(err, domain.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		t.logger.Warn("stream attach failed", logging.Fields{"session_id": sessionID, "err": err.Error()})
		http.Error(w, err.Error(), status)
	}
}

// handleRequest executes a single JSON-RPC envelope. Requests answer with one
// response envelope; notifications answer 202 with no body regardless of
// handler outcome. An initialize request creates the session on first
// contact; every other method requires an existing one.
func (t *Transport) handleRequest(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req domain.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.writeResponse(w, domain.NewErrorResponse(nil, domain.CodeParseError, "parse error", err.Error()))
		return
	}

	sess, err := t.lookupSession(sessionID, req.Method == "initialize")
	if err != nil {
		if req.IsNotification() {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		t.writeResponse(w, domain.ResponseFromError(req.ID, err))
		return
	}

	resp := t.processor.Execute(r.Context(), sess, req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	t.writeResponse(w, *resp)
}

// handleBatch executes an ordered array of envelopes. An empty array is a
// protocol error; an all-notifications batch answers 202 with no body.
func (t *Transport) handleBatch(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var reqs []domain.Request
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		t.writeResponse(w, domain.NewErrorResponse(nil, domain.CodeParseError, "parse error", err.Error()))
		return
	}

	sess, err := t.lookupSession(sessionID, containsInitialize(reqs))
	if err != nil {
		t.writeResponse(w, domain.ResponseFromError(nil, err))
		return
	}

	responses, err := t.processor.ExecuteBatch(r.Context(), sess, reqs)
	if err != nil {
		t.writeResponse(w, domain.ResponseFromError(nil, err))
		return
	}
	if len(responses) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(responses); err != nil {
		t.logger.Warn("failed to encode batch response", logging.Fields{"err": err.Error()})
	}
}

// handleListSessions lists known sessions. Administrative endpoint.
func (t *Transport) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	infos := t.registry.List()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"sessions": infos,
		"total":    len(infos),
	}); err != nil {
		t.logger.Warn("failed to encode session list", logging.Fields{"err": err.Error()})
	}
}

// handleCloseSession explicitly closes a session. Idempotent.
func (t *Transport) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	status := "closed"
	if _, err := t.registry.Get(sessionID); err != nil {
		status = "not_found"
	} else {
		t.registry.Close(sessionID)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":     status,
		"session_id": sessionID,
	}); err != nil {
		t.logger.Warn("failed to encode close response", logging.Fields{"err": err.Error()})
	}
}

// lookupSession resolves the session for a synchronous call. initialize is
// the first contact a client may make without an open stream, so it creates
// the session when needed.
func (t *Transport) lookupSession(sessionID string, createIfMissing bool) (*Session, error) {
	if createIfMissing {
		return t.registry.Create(sessionID)
	}
	return t.registry.Get(sessionID)
}

func containsInitialize(reqs []domain.Request) bool {
	for _, req := range reqs {
		if req.Method == "initialize" {
			return true
		}
	}
	return false
}

func (t *Transport) writeResponse(w http.ResponseWriter, resp domain.Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.logger.Warn("failed to encode response", logging.Fields{"err": err.Error()})
	}
}
