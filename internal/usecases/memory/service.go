// Package memory implements the memory store behind the tool registry: an
// in-memory, tenant-scoped CRUD store with keyword search and wiki-link
// extraction. It is one of the opaque executors the transport dispatches to;
// swapping it for a persistent or vector-backed store changes nothing in the
// transport layer.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/memvault/memvault/internal/domain"
	"github.com/memvault/memvault/internal/infrastructure/logging"
)

// Memory is one stored memory entry.
type Memory struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	TenantID  string         `json:"tenant_id"`
	UserID    string         `json:"user_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	WikiLinks []string       `json:"wiki_links,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SearchResult is one scored entry returned by Search.
type SearchResult struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Score     float64        `json:"score"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Service is the memory store and its tool surface.
type Service struct {
	clock  clockwork.Clock
	logger *logging.Logger

	mu       sync.RWMutex
	memories map[string]Memory
	order    []string // insertion order, for stable listings
}

// NewService creates an empty memory service.
func NewService(clock clockwork.Clock, logger *logging.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		clock:    clock,
		logger:   logger,
		memories: make(map[string]Memory),
	}
}

// Create stores a new memory, extracting wiki links from its content.
func (s *Service) Create(content, tenantID, userID string, metadata map[string]any) Memory {
	now := s.clock.Now().UTC()
	m := Memory{
		ID:        uuid.NewString(),
		Content:   content,
		TenantID:  tenantID,
		UserID:    userID,
		Metadata:  metadata,
		WikiLinks: ExtractWikiLinks(content),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.memories[m.ID] = m
	s.order = append(s.order, m.ID)
	s.mu.Unlock()

	s.logger.Info("memory created", logging.Fields{"memory_id": m.ID, "tenant_id": tenantID})
	return m
}

// Get returns the memory with the given id.
func (s *Service) Get(id string) (Memory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[id]
	return m, ok
}

// Update rewrites content and/or metadata of an existing memory. Passing an
// empty content leaves it untouched; new content re-extracts wiki links.
func (s *Service) Update(id, content string, metadata map[string]any) (Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[id]
	if !ok {
		return Memory{}, domain.Errorf(domain.CodeInvalidParams, "memory %q not found", id)
	}
	if content != "" {
		m.Content = content
		m.WikiLinks = ExtractWikiLinks(content)
	}
	if metadata != nil {
		m.Metadata = metadata
	}
	m.UpdatedAt = s.clock.Now().UTC()
	s.memories[id] = m
	return m, nil
}

// Delete removes a memory.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.memories[id]; !ok {
		return domain.Errorf(domain.CodeInvalidParams, "memory %q not found", id)
	}
	delete(s.memories, id)
	for i, mid := range s.order {
		if mid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns a page of the tenant's memories in creation order.
func (s *Service) List(tenantID string, skip, limit int) []Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []Memory
	for _, id := range s.order {
		if m := s.memories[id]; m.TenantID == tenantID {
			all = append(all, m)
		}
	}
	if skip >= len(all) {
		return nil
	}
	all = all[skip:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

// Search scores the tenant's memories by keyword overlap with the query:
// the score is the fraction of query words present in the content. Results
// are ordered by descending score.
func (s *Service) Search(tenantID, query string, limit int) []SearchResult {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil
	}

	s.mu.RLock()
	var results []SearchResult
	for _, id := range s.order {
		m := s.memories[id]
		if m.TenantID != tenantID {
			continue
		}
		content := strings.ToLower(m.Content)
		hits := 0
		for _, w := range words {
			if strings.Contains(content, w) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		results = append(results, SearchResult{
			ID:        m.ID,
			Content:   m.Content,
			Score:     float64(hits) / float64(len(words)),
			Metadata:  m.Metadata,
			CreatedAt: m.CreatedAt,
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}

// Stats summarizes the store.
func (s *Service) Stats() (total, tenants int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, m := range s.memories {
		seen[m.TenantID] = struct{}{}
	}
	return len(s.memories), len(seen)
}

// Methods returns the extra JSON-RPC methods the service exposes outside the
// tool surface.
func (s *Service) Methods() map[string]domain.ToolHandler {
	return map[string]domain.ToolHandler{
		"memory/stats": func(_ context.Context, _ map[string]any, caller domain.Caller) (any, error) {
			total, tenants := s.Stats()
			return map[string]any{
				"total_memories": total,
				"tenant_count":   tenants,
				"session_id":     caller.SessionID(),
			}, nil
		},
	}
}

// ListResources implements domain.ResourceProvider: one resource per tenant.
func (s *Service) ListResources(_ context.Context) []domain.Resource {
	s.mu.RLock()
	tenants := make(map[string]struct{})
	for _, m := range s.memories {
		tenants[m.TenantID] = struct{}{}
	}
	s.mu.RUnlock()

	ids := make([]string, 0, len(tenants))
	for id := range tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	resources := make([]domain.Resource, 0, len(ids))
	for _, id := range ids {
		resources = append(resources, domain.Resource{
			URI:         fmt.Sprintf("memory://tenant/%s/all", id),
			Name:        fmt.Sprintf("All memories for tenant %s", id),
			Description: "Access to all memories in the tenant",
			MIMEType:    "application/json",
		})
	}
	return resources
}

// ReadResource implements domain.ResourceProvider for memory://tenant/{id}/all URIs.
func (s *Service) ReadResource(_ context.Context, uri string) (domain.ResourceContents, error) {
	rest, ok := strings.CutPrefix(uri, "memory://tenant/")
	if !ok {
		return domain.ResourceContents{}, domain.Errorf(domain.CodeInvalidParams, "unknown resource %q", uri)
	}
	tenantID, ok := strings.CutSuffix(rest, "/all")
	if !ok || tenantID == "" {
		return domain.ResourceContents{}, domain.Errorf(domain.CodeInvalidParams, "unknown resource %q", uri)
	}

	memories := s.List(tenantID, 0, 0)
	text, err := json.MarshalIndent(memories, "", "  ")
	if err != nil {
		return domain.ResourceContents{}, fmt.Errorf("failed to encode memories: %w", err)
	}
	return domain.ResourceContents{
		URI:      uri,
		MIMEType: "application/json",
		Text:     string(text),
	}, nil
}

// ListPrompts implements domain.PromptProvider.
func (s *Service) ListPrompts(_ context.Context) []domain.Prompt {
	return []domain.Prompt{
		{
			Name:        "search_memories",
			Description: "Template for searching memories",
			Arguments: []domain.PromptArgument{
				{Name: "query", Description: "Search query", Required: true},
			},
		},
	}
}

// GetPrompt implements domain.PromptProvider.
func (s *Service) GetPrompt(_ context.Context, name string, args map[string]any) (domain.PromptResult, error) {
	if name != "search_memories" {
		return domain.PromptResult{}, domain.Errorf(domain.CodeInvalidParams, "unknown prompt %q", name)
	}

	query, _ := args["query"].(string)
	if query == "" {
		query = "your topic"
	}
	return domain.PromptResult{
		Description: "Search for relevant memories",
		Messages: []domain.PromptMessage{
			{
				Role:    "user",
				Content: domain.TextContent{Type: "text", Text: "Search for memories related to: " + query},
			},
		},
	}, nil
}
