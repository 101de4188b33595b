package source

import (
	"context"

	"episode-finder/internal/models"
)

// Mock serves the fixed development episodes.
type Mock struct{}

func (Mock) Name() string { return "mock" }

func (Mock) FetchAll(context.Context) ([]models.Episode, error) {
	return models.MockEpisodes(), nil
}
