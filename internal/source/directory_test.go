package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"episode-finder/internal/logger"
	"episode-finder/internal/metadata"
	"episode-finder/internal/models"
)

func writeAudio(t *testing.T, path string, modified time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
	require.NoError(t, os.Chtimes(path, modified, modified))
}

func TestDirectoryFetchAll(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	writeAudio(t, filepath.Join(root, "b-second.wav"), base.Add(2*time.Hour))
	writeAudio(t, filepath.Join(root, "nested", "a-first.flac"), base.Add(time.Hour))
	writeAudio(t, filepath.Join(root, "c-third.ogg"), base.Add(3*time.Hour))
	require.NoError(t, os.WriteFile(filepath.Join(root, "cover.jpg"), []byte("img"), 0o644))

	src := NewDirectory(Config{Location: root, BaseURL: "https://cdn.example.com/", Workers: 2}, logger.Discard())
	assert.Equal(t, []string{root}, src.WatchPaths())

	episodes, err := src.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, episodes, 3)

	byTitle := map[string]models.Episode{}
	for _, ep := range episodes {
		byTitle[ep.Title] = ep
	}
	assert.Equal(t, "1", byTitle["a-first"].Number.String())
	assert.Equal(t, "2", byTitle["b-second"].Number.String())
	assert.Equal(t, "3", byTitle["c-third"].Number.String())
	assert.Equal(t, "https://cdn.example.com/nested/a-first.flac", byTitle["a-first"].AudioLink)
	assert.Equal(t, base.Add(time.Hour).Unix(), byTitle["a-first"].CreateTime)
}

func TestDirectoryFetchAllSkipsUnreadableFiles(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	writeAudio(t, filepath.Join(root, "good.wav"), base)
	require.NoError(t, os.Symlink(filepath.Join(root, "gone.mp3"), filepath.Join(root, "dangling.mp3")))

	src := NewDirectory(Config{Location: root, Workers: 2}, logger.Discard())
	episodes, err := src.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, "good", episodes[0].Title)
	assert.Equal(t, "1", episodes[0].Number.String())
}

func TestDirectoryNumbersUntrackedAfterTracks(t *testing.T) {
	d := NewDirectory(Config{Location: "/unused"}, logger.Discard())
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	episodes := d.episodes([]metadata.File{
		{RelativePath: "late.mp3", Title: "late", ModifiedAt: base.Add(time.Hour)},
		{RelativePath: "tracked.mp3", Title: "tracked", Track: 7, ModifiedAt: base},
		{RelativePath: "early.mp3", Title: "early", ModifiedAt: base},
	})

	got := map[string]string{}
	for _, ep := range episodes {
		got[ep.Title] = ep.Number.String()
	}
	assert.Equal(t, map[string]string{"tracked": "7", "early": "8", "late": "9"}, got)
}

func TestDirectoryFetchAllMissingRoot(t *testing.T) {
	src := NewDirectory(Config{Location: filepath.Join(t.TempDir(), "missing")}, logger.Discard())
	_, err := src.FetchAll(context.Background())
	assert.Error(t, err)
}
