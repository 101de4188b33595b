package search

import "episode-finder/internal/models"

// Result is one page of search hits plus the engine's metadata.
type Result struct {
	Hits                   []models.Episode `json:"hits"`
	TotalHits              int              `json:"totalHits"`
	TotalHitsIsApproximate bool             `json:"totalHitsIsApproximate"`
	ProcessingTimeMs       int              `json:"processingTimeMs"`
}

// Clone returns a copy whose hit list can be modified freely.
func (r Result) Clone() Result {
	out := r
	out.Hits = make([]models.Episode, len(r.Hits))
	copy(out.Hits, r.Hits)
	return out
}

// Page returns a clone holding at most limit hits starting at offset. An
// offset past the end yields an empty page; a nil limit keeps every
// remaining hit.
func (r Result) Page(offset int, limit *int) Result {
	start := min(max(offset, 0), len(r.Hits))
	end := len(r.Hits)
	if limit != nil {
		end = start + min(max(*limit, 0), end-start)
	}

	out := r
	out.Hits = make([]models.Episode, end-start)
	copy(out.Hits, r.Hits[start:end])
	return out
}

// Numbers returns the identifier keys of every hit.
func (r Result) Numbers() map[string]struct{} {
	out := make(map[string]struct{}, len(r.Hits))
	for _, hit := range r.Hits {
		out[hit.Number.Key()] = struct{}{}
	}
	return out
}
