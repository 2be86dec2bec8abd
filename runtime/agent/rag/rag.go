// Package rag defines optional retrieval collaborators: vector, text, and
// regex search, typed-entity lookup, and result expansion. Implementations
// advertise the capabilities they support; the tool facade builds only the
// user-facing tools it can back.
package rag

import "context"

type (
	// SimilarityResult is one search hit.
	SimilarityResult struct {
		// ID identifies the matched document or chunk.
		ID string
		// Score is the similarity or relevance score, higher is better.
		Score float64
		// Content is the matched text.
		Content string
		// Metadata carries source properties usable in filters.
		Metadata map[string]any
	}

	// VectorSearcher performs similarity search over an embedding space.
	VectorSearcher interface {
		Search(ctx context.Context, query string, topK int, threshold float64, filter *Filter) ([]SimilarityResult, error)
	}

	// TextSearcher performs full-text search with Lucene query syntax.
	TextSearcher interface {
		SearchText(ctx context.Context, query string, topK int, filter *Filter) ([]SimilarityResult, error)
	}

	// RegexSearcher matches documents against a regular expression.
	RegexSearcher interface {
		SearchRegex(ctx context.Context, pattern string, topK int, filter *Filter) ([]SimilarityResult, error)
	}

	// Finder looks up typed entities by identifier.
	Finder interface {
		Find(ctx context.Context, typeName, id string) (any, error)
	}

	// Expander widens a hit to its neighbouring chunks or enclosing section.
	Expander interface {
		Expand(ctx context.Context, result SimilarityResult) ([]SimilarityResult, error)
	}

	// Capabilities reports which searches a backend supports by capability
	// name: "vector", "text", "regex", "find", "expand".
	Capabilities interface {
		SupportsType(name string) bool
	}
)

// Capability names accepted by Capabilities.SupportsType.
const (
	CapabilityVector = "vector"
	CapabilityText   = "text"
	CapabilityRegex  = "regex"
	CapabilityFind   = "find"
	CapabilityExpand = "expand"
)
