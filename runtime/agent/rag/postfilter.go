package rag

import "context"

// inflationFactor widens the backend fetch when filtering in memory, so the
// caller still receives close to topK hits after rejection.
const inflationFactor = 4

// PostFilter wraps a VectorSearcher that cannot translate filters natively:
// it over-fetches by a fixed inflation factor, applies the filter in memory,
// and truncates to topK.
type PostFilter struct {
	Backend VectorSearcher
}

// Search implements VectorSearcher.
func (p *PostFilter) Search(ctx context.Context, query string, topK int, threshold float64, filter *Filter) ([]SimilarityResult, error) {
	if topK <= 0 {
		topK = 10
	}
	hits, err := p.Backend.Search(ctx, query, topK*inflationFactor, threshold, nil)
	if err != nil {
		return nil, err
	}
	out := make([]SimilarityResult, 0, topK)
	for _, hit := range hits {
		if !filter.Matches(hit.Metadata) {
			continue
		}
		out = append(out, hit)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}
