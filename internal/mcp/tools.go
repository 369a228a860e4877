package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cadre-oss/hearth/internal/memory"
)

// Memory is the engine surface exposed as tools. *agent.Engine satisfies it.
type Memory interface {
	AddFact(ctx context.Context, text string, category memory.Category) (*memory.Fact, error)
	ListFacts(ctx context.Context) ([]memory.Fact, error)
	SearchFacts(ctx context.Context, query string) ([]memory.ScoredFact, error)
	SearchEpisodes(ctx context.Context, query string) (*memory.SearchResult, error)
	RecentEpisodes(ctx context.Context, limit int) ([]memory.Episode, error)
}

// ToolDef describes an MCP tool for tools/list.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func queryArg(desc string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string", "description": desc}},
		"required":   []string{"query"},
	}
}

// AllTools returns the memory tool definitions.
func AllTools() []ToolDef {
	return []ToolDef{
		{
			Name:        "remember_fact",
			Description: "Store a durable fact about the user",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text":     map[string]any{"type": "string", "description": "The fact, in one sentence"},
					"category": map[string]any{"type": "string", "description": "Optional category", "default": "explicit"},
				},
				"required": []string{"text"},
			},
		},
		{
			Name:        "list_facts",
			Description: "List every stored fact",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        "search_facts",
			Description: "Rank stored facts by keyword overlap and recency",
			InputSchema: queryArg("What to look for"),
		},
		{
			Name:        "recall_episodes",
			Description: "Find past conversation turns similar to a query",
			InputSchema: queryArg("Text to compare past turns against"),
		},
		{
			Name:        "recent_episodes",
			Description: "Return the most recent conversation turns",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"limit": map[string]any{"type": "integer", "description": "Number of turns", "default": 10},
				},
			},
		},
	}
}

// ToolHandler dispatches tool calls to memory.
type ToolHandler struct {
	mem Memory
}

// NewToolHandler creates a handler over mem.
func NewToolHandler(mem Memory) *ToolHandler {
	return &ToolHandler{mem: mem}
}

// Call dispatches a tool call by name with the given arguments.
func (h *ToolHandler) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case "remember_fact":
		return h.rememberFact(ctx, args)
	case "list_facts":
		facts, err := h.mem.ListFacts(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"facts": nonNil(facts), "count": len(facts)}, nil
	case "search_facts":
		q, err := parseQuery(args)
		if err != nil {
			return nil, err
		}
		facts, err := h.mem.SearchFacts(ctx, q)
		if err != nil {
			return nil, err
		}
		return map[string]any{"facts": nonNil(facts), "count": len(facts)}, nil
	case "recall_episodes":
		q, err := parseQuery(args)
		if err != nil {
			return nil, err
		}
		res, err := h.mem.SearchEpisodes(ctx, q)
		if err != nil {
			return nil, err
		}
		return map[string]any{"episodes": nonNil(res.Episodes), "count": len(res.Episodes), "stale": res.Stale}, nil
	case "recent_episodes":
		return h.recentEpisodes(ctx, args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func (h *ToolHandler) rememberFact(ctx context.Context, args json.RawMessage) (any, error) {
	var params struct {
		Text     string `json:"text"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("parse args: %w", err)
	}
	if params.Text == "" {
		return nil, fmt.Errorf("text is required")
	}
	category := memory.CategoryExplicit
	if params.Category != "" {
		category = memory.Category(params.Category)
	}

	f, err := h.mem.AddFact(ctx, params.Text, category)
	if err != nil {
		return nil, err
	}
	return map[string]any{"fact": f, "status": "remembered"}, nil
}

func (h *ToolHandler) recentEpisodes(ctx context.Context, args json.RawMessage) (any, error) {
	params := struct {
		Limit int `json:"limit"`
	}{Limit: 10}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("parse args: %w", err)
		}
	}
	if params.Limit <= 0 {
		params.Limit = 10
	}

	eps, err := h.mem.RecentEpisodes(ctx, params.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"episodes": nonNil(eps), "count": len(eps)}, nil
}

func parseQuery(args json.RawMessage) (string, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Query == "" {
		return "", fmt.Errorf("query is required")
	}
	return params.Query, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
