package memory

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memvault/memvault/internal/domain"
)

func newTestService(t *testing.T) (*Service, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	return NewService(clock, nil), clock
}

func TestServiceCreateAndGet(t *testing.T) {
	svc, clock := newTestService(t)

	m := svc.Create("note about [[Project Alpha]] and [[Roadmap]]", "tenant-1", "user-1",
		map[string]any{"source": "test"})

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "tenant-1", m.TenantID)
	assert.Equal(t, "user-1", m.UserID)
	assert.Equal(t, []string{"Project Alpha", "Roadmap"}, m.WikiLinks)
	assert.Equal(t, clock.Now().UTC(), m.CreatedAt)
	assert.Equal(t, m.CreatedAt, m.UpdatedAt)

	got, ok := svc.Get(m.ID)
	require.True(t, ok)
	assert.Equal(t, m, got)

	_, ok = svc.Get("missing")
	assert.False(t, ok)
}

func TestServiceUpdate(t *testing.T) {
	svc, clock := newTestService(t)
	m := svc.Create("original [[old-link]]", "tenant-1", "user-1", nil)

	clock.Advance(time.Second)
	updated, err := svc.Update(m.ID, "rewritten [[new-link]]", map[string]any{"rev": float64(2)})
	require.NoError(t, err)
	assert.Equal(t, "rewritten [[new-link]]", updated.Content)
	assert.Equal(t, []string{"new-link"}, updated.WikiLinks)
	assert.Equal(t, map[string]any{"rev": float64(2)}, updated.Metadata)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	// Empty content leaves content and links untouched.
	same, err := svc.Update(m.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "rewritten [[new-link]]", same.Content)
	assert.Equal(t, []string{"new-link"}, same.WikiLinks)

	_, err = svc.Update("missing", "x", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestServiceDelete(t *testing.T) {
	svc, _ := newTestService(t)
	m := svc.Create("to be removed", "tenant-1", "user-1", nil)

	require.NoError(t, svc.Delete(m.ID))
	_, ok := svc.Get(m.ID)
	assert.False(t, ok)

	assert.ErrorIs(t, svc.Delete(m.ID), domain.ErrInvalidParams)
}

func TestServiceListPaginatesPerTenant(t *testing.T) {
	svc, _ := newTestService(t)

	var ids []string
	for _, content := range []string{"one", "two", "three"} {
		ids = append(ids, svc.Create(content, "tenant-1", "user-1", nil).ID)
	}
	svc.Create("other tenant", "tenant-2", "user-1", nil)

	all := svc.List("tenant-1", 0, 0)
	require.Len(t, all, 3)
	// Creation order.
	assert.Equal(t, ids[0], all[0].ID)
	assert.Equal(t, ids[2], all[2].ID)

	page := svc.List("tenant-1", 1, 1)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)

	assert.Nil(t, svc.List("tenant-1", 10, 5))
	assert.Len(t, svc.List("tenant-2", 0, 0), 1)
	assert.Nil(t, svc.List("tenant-3", 0, 0))
}

func TestServiceSearch(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Create("the quick brown fox", "tenant-1", "user-1", nil)
	svc.Create("quick summary of the meeting", "tenant-1", "user-1", nil)
	svc.Create("unrelated grocery list", "tenant-1", "user-1", nil)
	svc.Create("quick brown fox in another tenant", "tenant-2", "user-1", nil)

	results := svc.Search("tenant-1", "quick fox", 10)
	require.Len(t, results, 2)
	// Full match outranks partial.
	assert.Equal(t, "the quick brown fox", results[0].Content)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, "quick summary of the meeting", results[1].Content)
	assert.Equal(t, 0.5, results[1].Score)

	assert.Len(t, svc.Search("tenant-1", "quick fox", 1), 1)
	assert.Nil(t, svc.Search("tenant-1", "", 10))
	assert.Nil(t, svc.Search("tenant-1", "nothing matches this", 10))
}

func TestServiceStatsMethod(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Create("a", "tenant-1", "user-1", nil)
	svc.Create("b", "tenant-1", "user-1", nil)
	svc.Create("c", "tenant-2", "user-2", nil)

	total, tenants := svc.Stats()
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, tenants)

	handler, ok := svc.Methods()["memory/stats"]
	require.True(t, ok)

	caller := &fakeCaller{id: "sess-1"}
	result, err := handler(context.Background(), nil, caller)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"total_memories": 3,
		"tenant_count":   2,
		"session_id":     "sess-1",
	}, result)
}

func TestServiceResources(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Create("alpha note", "tenant-b", "user-1", nil)
	svc.Create("beta note", "tenant-a", "user-1", nil)

	resources := svc.ListResources(context.Background())
	require.Len(t, resources, 2)
	// Sorted by tenant id.
	assert.Equal(t, "memory://tenant/tenant-a/all", resources[0].URI)
	assert.Equal(t, "memory://tenant/tenant-b/all", resources[1].URI)
	assert.Equal(t, "application/json", resources[0].MIMEType)

	contents, err := svc.ReadResource(context.Background(), "memory://tenant/tenant-a/all")
	require.NoError(t, err)
	assert.Equal(t, "memory://tenant/tenant-a/all", contents.URI)
	assert.Contains(t, contents.Text, "beta note")
	assert.NotContains(t, contents.Text, "alpha note")

	for _, uri := range []string{"bogus://x", "memory://tenant/x", "memory://tenant//all"} {
		_, err := svc.ReadResource(context.Background(), uri)
		assert.ErrorIs(t, err, domain.ErrInvalidParams, uri)
	}
}

func TestServicePrompts(t *testing.T) {
	svc, _ := newTestService(t)

	prompts := svc.ListPrompts(context.Background())
	require.Len(t, prompts, 1)
	assert.Equal(t, "search_memories", prompts[0].Name)

	result, err := svc.GetPrompt(context.Background(), "search_memories", map[string]any{"query": "kubernetes"})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "user", result.Messages[0].Role)
	assert.Contains(t, result.Messages[0].Content.Text, "kubernetes")

	// Missing query falls back to a placeholder instead of failing.
	result, err = svc.GetPrompt(context.Background(), "search_memories", nil)
	require.NoError(t, err)
	assert.Contains(t, result.Messages[0].Content.Text, "your topic")

	_, err = svc.GetPrompt(context.Background(), "unknown", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)
}
