package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/memvault/memvault/internal/domain"
)

// Tools returns the memory tool registry entries. Mutating tools push a
// notification into the calling session's queue so attached streams see the
// change without polling.
func (s *Service) Tools() []domain.Tool {
	return []domain.Tool{
		{
			Name:        "memory_create",
			Description: "Create a new memory entry",
			InputSchema: objectSchema(map[string]any{
				"content":   map[string]any{"type": "string", "description": "The content to store as a memory"},
				"tenant_id": map[string]any{"type": "string", "description": "Tenant ID for multi-tenancy"},
				"user_id":   map[string]any{"type": "string", "description": "User ID who created the memory"},
				"metadata":  map[string]any{"type": "object", "description": "Additional metadata for the memory"},
			}, "content", "tenant_id", "user_id"),
			Handler: s.handleCreate,
		},
		{
			Name:        "memory_search",
			Description: "Search through stored memories using keyword search",
			InputSchema: objectSchema(map[string]any{
				"query":     map[string]any{"type": "string", "description": "Search query text"},
				"tenant_id": map[string]any{"type": "string", "description": "Tenant ID for multi-tenancy"},
				"limit":     map[string]any{"type": "number", "description": "Maximum number of results", "default": 10},
			}, "query", "tenant_id"),
			Handler: s.handleSearch,
		},
		{
			Name:        "memory_update",
			Description: "Update an existing memory entry",
			InputSchema: objectSchema(map[string]any{
				"memory_id": map[string]any{"type": "string", "description": "ID of the memory to update"},
				"content":   map[string]any{"type": "string", "description": "New content for the memory"},
				"metadata":  map[string]any{"type": "object", "description": "Updated metadata"},
			}, "memory_id"),
			Handler: s.handleUpdate,
		},
		{
			Name:        "memory_delete",
			Description: "Delete a memory entry",
			InputSchema: objectSchema(map[string]any{
				"memory_id": map[string]any{"type": "string", "description": "ID of the memory to delete"},
			}, "memory_id"),
			Handler: s.handleDelete,
		},
		{
			Name:        "memory_list",
			Description: "List all memories for a tenant with pagination",
			InputSchema: objectSchema(map[string]any{
				"tenant_id": map[string]any{"type": "string", "description": "Tenant ID for multi-tenancy"},
				"skip":      map[string]any{"type": "number", "default": 0},
				"limit":     map[string]any{"type": "number", "default": 50},
			}, "tenant_id"),
			Handler: s.handleList,
		},
	}
}

func (s *Service) handleCreate(_ context.Context, args map[string]any, caller domain.Caller) (any, error) {
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}
	tenantID, err := stringArg(args, "tenant_id")
	if err != nil {
		return nil, err
	}
	userID, err := stringArg(args, "user_id")
	if err != nil {
		return nil, err
	}
	metadata, _ := args["metadata"].(map[string]any)

	m := s.Create(content, tenantID, userID, metadata)
	caller.Notify("memory.created", map[string]any{
		"memory_id": m.ID,
		"tenant_id": m.TenantID,
	})
	return domain.TextResult(fmt.Sprintf("Memory created with ID: %s", m.ID)), nil
}

func (s *Service) handleSearch(_ context.Context, args map[string]any, _ domain.Caller) (any, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	tenantID, err := stringArg(args, "tenant_id")
	if err != nil {
		return nil, err
	}
	limit := intArg(args, "limit", 10)

	results := s.Search(tenantID, query, limit)
	return jsonTextResult(map[string]any{"memories": results})
}

func (s *Service) handleUpdate(_ context.Context, args map[string]any, caller domain.Caller) (any, error) {
	memoryID, err := stringArg(args, "memory_id")
	if err != nil {
		return nil, err
	}
	content, _ := args["content"].(string)
	metadata, _ := args["metadata"].(map[string]any)

	m, err := s.Update(memoryID, content, metadata)
	if err != nil {
		return nil, err
	}
	caller.Notify("memory.updated", map[string]any{
		"memory_id": m.ID,
		"tenant_id": m.TenantID,
	})
	return domain.TextResult(fmt.Sprintf("Memory %s updated", m.ID)), nil
}

func (s *Service) handleDelete(_ context.Context, args map[string]any, caller domain.Caller) (any, error) {
	memoryID, err := stringArg(args, "memory_id")
	if err != nil {
		return nil, err
	}
	if err := s.Delete(memoryID); err != nil {
		return nil, err
	}
	caller.Notify("memory.deleted", map[string]any{"memory_id": memoryID})
	return domain.TextResult(fmt.Sprintf("Memory %s deleted", memoryID)), nil
}

func (s *Service) handleList(_ context.Context, args map[string]any, _ domain.Caller) (any, error) {
	tenantID, err := stringArg(args, "tenant_id")
	if err != nil {
		return nil, err
	}
	skip := intArg(args, "skip", 0)
	limit := intArg(args, "limit", 50)

	type listEntry struct {
		ID        string    `json:"id"`
		Content   string    `json:"content"`
		CreatedAt time.Time `json:"created_at"`
	}
	memories := s.List(tenantID, skip, limit)
	entries := make([]listEntry, 0, len(memories))
	for _, m := range memories {
		entries = append(entries, listEntry{
			ID:        m.ID,
			Content:   truncate(m.Content, 200),
			CreatedAt: m.CreatedAt,
		})
	}
	return jsonTextResult(map[string]any{"memories": entries})
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", domain.Errorf(domain.CodeInvalidParams, "missing required argument %q", key)
	}
	return v, nil
}

// intArg reads a numeric argument. JSON numbers decode as float64.
func intArg(args map[string]any, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return fallback
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func jsonTextResult(v any) (any, error) {
	text, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return domain.TextResult(string(text)), nil
}
