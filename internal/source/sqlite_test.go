package source

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"episode-finder/internal/logger"
	"episode-finder/internal/models"
)

func TestSQLiteSaveAndFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episodes.db")
	db, err := OpenSQLite(path, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	empty, err := db.FetchAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	twelve, err := models.ParseIdentifier("12.0")
	require.NoError(t, err)
	require.NoError(t, db.Save(ctx, []models.Episode{
		models.NewEpisode(models.IdentifierFromInt(1), "One", "first", "https://cdn/1.mp3", 60, 100, "b", "a"),
		models.NewEpisode(twelve, "Twelve", "", "https://cdn/12.mp3", 720, 1200),
	}))
	require.NoError(t, db.Save(ctx, []models.Episode{
		models.NewEpisode(models.IdentifierFromInt(1), "One (remastered)", "first", "https://cdn/1.mp3", 61, 100, "a"),
	}))

	episodes, err := db.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, episodes, 2)

	byKey := map[string]models.Episode{}
	for _, ep := range episodes {
		byKey[ep.Number.Key()] = ep
	}
	assert.Equal(t, "One (remastered)", byKey["1"].Title)
	assert.Equal(t, []models.Tag{"a"}, byKey["1"].Tags)
	assert.Equal(t, 720, byKey["12.0"].LengthInSeconds, "canonical text survives the round trip")
	assert.Equal(t, []models.Tag{}, byKey["12.0"].Tags)
	assert.Equal(t, []string{path}, db.WatchPaths())
}
