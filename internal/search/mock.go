package search

import (
	"fmt"

	"episode-finder/internal/models"
)

// MockResult is the fixed result returned in mock mode.
func MockResult() Result {
	hits := models.MockEpisodes()
	return Result{
		Hits:                   hits,
		TotalHits:              len(hits),
		TotalHitsIsApproximate: false,
		ProcessingTimeMs:       1234,
	}
}

// MockSuggestions is the fixed suggestion list returned in mock mode.
func MockSuggestions() []string {
	out := make([]string, 0, 4)
	for i := 1; i < 5; i++ {
		out = append(out, fmt.Sprintf("Suggestion #%d", i))
	}
	return out
}
