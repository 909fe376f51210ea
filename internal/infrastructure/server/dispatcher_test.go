package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmaxmax/go-sse"

	"github.com/memvault/memvault/internal/domain"
)

func newStreamServer(t *testing.T, heartbeat time.Duration) (*httptest.Server, *Registry, *clockwork.FakeClock) {
	t.Helper()
	registry, clock := newTestRegistry(t)
	dispatcher := NewDispatcher(registry, clock, heartbeat, nil)
	transport := NewTransport(registry, dispatcher, NewProcessor(ProcessorConfig{}), nil)
	ts := httptest.NewServer(transport.Router())
	t.Cleanup(ts.Close)
	return ts, registry, clock
}

// openStream connects to an SSE endpoint and feeds its events into a channel.
// The connection is torn down by test cleanup.
func openStream(t *testing.T, url string) <-chan sse.Event {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := make(chan sse.Event, 16)
	go func() {
		defer close(events)
		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				return
			}
			events <- ev
		}
	}()
	return events
}

func nextEvent(t *testing.T, events <-chan sse.Event) sse.Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream ended while waiting for an event")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
		return sse.Event{}
	}
}

func decodeNotification(t *testing.T, ev sse.Event) domain.Notification {
	t.Helper()
	var n domain.Notification
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &n))
	assert.Equal(t, domain.Version, n.JSONRPC)
	return n
}

func TestStreamHandshakeAndQueueDrain(t *testing.T) {
	ts, registry, _ := newStreamServer(t, time.Minute)

	sess, err := registry.Create("sess-1")
	require.NoError(t, err)
	// Enqueued while detached: must survive until a stream attaches.
	sess.Notify("job.progress", map[string]any{"step": 1})
	sess.Notify("job.progress", map[string]any{"step": 2})

	events := openStream(t, ts.URL+"/mcp/stream/sess-1")

	// The connected handshake always comes first.
	ev := nextEvent(t, events)
	assert.Equal(t, "connected", ev.Type)
	n := decodeNotification(t, ev)
	assert.Equal(t, "session.connected", n.Method)
	assert.Equal(t, "sess-1", n.Params["session_id"])
	assert.Equal(t, "jsonrpc-sse/2.0", n.Params["protocol"])

	// Queued notifications drain in FIFO order after the handshake.
	for _, step := range []float64{1, 2} {
		ev = nextEvent(t, events)
		assert.Equal(t, "message", ev.Type)
		n = decodeNotification(t, ev)
		assert.Equal(t, "job.progress", n.Method)
		assert.Equal(t, step, n.Params["step"])
	}

	require.Eventually(t, func() bool {
		return sess.State() == StateActive
	}, time.Second, 10*time.Millisecond)
}

func TestStreamAllocatesSessionID(t *testing.T) {
	ts, registry, _ := newStreamServer(t, time.Minute)

	events := openStream(t, ts.URL+"/mcp/stream")

	n := decodeNotification(t, nextEvent(t, events))
	require.Equal(t, "session.connected", n.Method)

	id, ok := n.Params["session_id"].(string)
	require.True(t, ok)
	assert.Len(t, id, 36)

	sess, err := registry.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StateActive, sess.State())
}

func TestStreamHeartbeat(t *testing.T) {
	const interval = 30 * time.Second
	ts, _, clock := newStreamServer(t, interval)

	events := openStream(t, ts.URL+"/mcp/stream/sess-1")
	nextEvent(t, events) // connected

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(interval)

	ev := nextEvent(t, events)
	assert.Equal(t, "heartbeat", ev.Type)
	n := decodeNotification(t, ev)
	assert.Equal(t, "session.heartbeat", n.Method)
	assert.Equal(t, "sess-1", n.Params["session_id"])
	assert.NotEmpty(t, n.Params["timestamp"])
}

func TestStreamSecondAttachConflicts(t *testing.T) {
	ts, _, _ := newStreamServer(t, time.Minute)

	events := openStream(t, ts.URL+"/mcp/stream/sess-1")
	nextEvent(t, events) // connected

	resp, err := http.Get(ts.URL + "/mcp/stream/sess-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStreamAttachToClosedSessionFails(t *testing.T) {
	ts, registry, _ := newStreamServer(t, time.Minute)

	_, err := registry.Create("sess-1")
	require.NoError(t, err)
	registry.Close("sess-1")

	resp, err := http.Get(ts.URL + "/mcp/stream/sess-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStreamDisconnectedOnClose(t *testing.T) {
	ts, registry, _ := newStreamServer(t, time.Minute)

	events := openStream(t, ts.URL+"/mcp/stream/sess-1")
	nextEvent(t, events) // connected

	registry.Close("sess-1")

	ev := nextEvent(t, events)
	assert.Equal(t, "disconnected", ev.Type)
	n := decodeNotification(t, ev)
	assert.Equal(t, "session.disconnected", n.Method)
	assert.Equal(t, "sess-1", n.Params["session_id"])

	// The stream terminates after the farewell event.
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not terminate after session close")
	}
}

func TestStreamDetachOnClientDisconnect(t *testing.T) {
	ts, registry, _ := newStreamServer(t, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/mcp/stream/sess-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// Create-on-attach happens inside the handler, so wait for it.
	var sess *Session
	require.Eventually(t, func() bool {
		s, err := registry.Get("sess-1")
		if err != nil {
			return false
		}
		sess = s
		return s.State() == StateActive
	}, time.Second, 10*time.Millisecond)

	cancel()

	// Dropped streams leave the session pending so the client can re-attach.
	require.Eventually(t, func() bool {
		return sess.State() == StatePending
	}, time.Second, 10*time.Millisecond)
	assert.NotNil(t, sess.Queue())
}
