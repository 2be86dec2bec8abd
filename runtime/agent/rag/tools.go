package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arcline-ai/arcline/runtime/agent/tools"
)

// DefaultTopK is the hit count used when a tool call omits top_k.
const DefaultTopK = 10

// Toolset builds the user-facing search tools for a retrieval backend. Only
// the capabilities with a non-nil collaborator produce tools, so agents see
// exactly the searches their backend supports.
type Toolset struct {
	Vector   VectorSearcher
	Text     TextSearcher
	Regex    RegexSearcher
	Finder   Finder
	Expander Expander

	// TopK overrides DefaultTopK for calls that omit top_k.
	TopK int
	// Threshold is the minimum similarity score passed to vector search.
	Threshold float64
}

// Tools returns one tool per supported capability.
func (ts *Toolset) Tools() []*tools.Tool {
	var out []*tools.Tool
	if ts.Vector != nil {
		out = append(out, ts.vectorTool())
	}
	if ts.Text != nil {
		out = append(out, ts.textTool())
	}
	if ts.Regex != nil {
		out = append(out, ts.regexTool())
	}
	if ts.Finder != nil {
		out = append(out, ts.finderTool())
	}
	if ts.Expander != nil {
		out = append(out, ts.expanderTool())
	}
	return out
}

func (ts *Toolset) topK(requested int) int {
	if requested > 0 {
		return requested
	}
	if ts.TopK > 0 {
		return ts.TopK
	}
	return DefaultTopK
}

type searchArgs struct {
	Query  string         `json:"query"`
	TopK   int            `json:"top_k"`
	Filter map[string]any `json:"filter"`
}

// filterOf converts the tool-call filter map into an equality conjunction.
func filterOf(fields map[string]any) *Filter {
	if len(fields) == 0 {
		return nil
	}
	subs := make([]*Filter, 0, len(fields))
	for field, v := range fields {
		subs = append(subs, Eq(field, v))
	}
	if len(subs) == 1 {
		return subs[0]
	}
	return And(subs...)
}

func searchSchema(queryField, queryDoc string) map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{queryField},
		"properties": map[string]any{
			queryField: map[string]any{"type": "string", "description": queryDoc},
			"top_k":    map[string]any{"type": "integer", "description": "Maximum number of results."},
			"filter": map[string]any{
				"type":        "object",
				"description": "Metadata equality constraints; all must match.",
			},
		},
	}
}

func renderHits(hits []SimilarityResult) (tools.Result, error) {
	if len(hits) == 0 {
		return &tools.Text{Content: "No results."}, nil
	}
	data, err := json.Marshal(hits)
	if err != nil {
		return &tools.Error{Message: fmt.Sprintf("encode results: %v", err)}, nil
	}
	return &tools.Text{Content: string(data)}, nil
}

func (ts *Toolset) vectorTool() *tools.Tool {
	return &tools.Tool{
		Definition: tools.Definition{
			Name:        "search_similar",
			Description: "Find content semantically similar to the query.",
			InputSchema: searchSchema("query", "Natural language query."),
		},
		Call: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			var args searchArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return &tools.Error{Message: err.Error()}, nil
			}
			hits, err := ts.Vector.Search(ctx, args.Query, ts.topK(args.TopK), ts.Threshold, filterOf(args.Filter))
			if err != nil {
				return &tools.Error{Message: err.Error()}, nil
			}
			return renderHits(hits)
		},
	}
}

func (ts *Toolset) textTool() *tools.Tool {
	return &tools.Tool{
		Definition: tools.Definition{
			Name:        "search_text",
			Description: "Full-text search with Lucene query syntax.",
			InputSchema: searchSchema("query", "Lucene query string."),
		},
		Call: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			var args searchArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return &tools.Error{Message: err.Error()}, nil
			}
			hits, err := ts.Text.SearchText(ctx, args.Query, ts.topK(args.TopK), filterOf(args.Filter))
			if err != nil {
				return &tools.Error{Message: err.Error()}, nil
			}
			return renderHits(hits)
		},
	}
}

func (ts *Toolset) regexTool() *tools.Tool {
	return &tools.Tool{
		Definition: tools.Definition{
			Name:        "search_regex",
			Description: "Match documents against a regular expression.",
			InputSchema: searchSchema("pattern", "Go regular expression."),
		},
		Call: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			var args struct {
				Pattern string         `json:"pattern"`
				TopK    int            `json:"top_k"`
				Filter  map[string]any `json:"filter"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return &tools.Error{Message: err.Error()}, nil
			}
			hits, err := ts.Regex.SearchRegex(ctx, args.Pattern, ts.topK(args.TopK), filterOf(args.Filter))
			if err != nil {
				return &tools.Error{Message: err.Error()}, nil
			}
			return renderHits(hits)
		},
	}
}

func (ts *Toolset) finderTool() *tools.Tool {
	return &tools.Tool{
		Definition: tools.Definition{
			Name:        "find_entity",
			Description: "Look up a typed entity by identifier.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"type", "id"},
				"properties": map[string]any{
					"type": map[string]any{"type": "string", "description": "Domain type name."},
					"id":   map[string]any{"type": "string", "description": "Entity identifier."},
				},
			},
		},
		Call: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			var args struct {
				Type string `json:"type"`
				ID   string `json:"id"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return &tools.Error{Message: err.Error()}, nil
			}
			v, err := ts.Finder.Find(ctx, args.Type, args.ID)
			if err != nil {
				return &tools.Error{Message: err.Error()}, nil
			}
			data, err := json.Marshal(v)
			if err != nil {
				return &tools.Error{Message: fmt.Sprintf("encode entity: %v", err)}, nil
			}
			return &tools.Text{Content: string(data)}, nil
		},
	}
}

func (ts *Toolset) expanderTool() *tools.Tool {
	return &tools.Tool{
		Definition: tools.Definition{
			Name:        "expand_result",
			Description: "Widen a search hit to its neighbouring chunks or enclosing section.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"id"},
				"properties": map[string]any{
					"id": map[string]any{"type": "string", "description": "Identifier of the hit to expand."},
				},
			},
		},
		Call: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			var args struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return &tools.Error{Message: err.Error()}, nil
			}
			hits, err := ts.Expander.Expand(ctx, SimilarityResult{ID: args.ID})
			if err != nil {
				return &tools.Error{Message: err.Error()}, nil
			}
			return renderHits(hits)
		},
	}
}
