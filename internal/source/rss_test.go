package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"episode-finder/internal/logger"
	"episode-finder/internal/models"
)

const feedFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title>Fixture</title>
    <item>
      <title>Third</title>
      <description>Latest</description>
      <category>history</category>
      <category>law</category>
      <pubDate>Fri, 08 Mar 2024 10:00:00 +0000</pubDate>
      <enclosure url="https://cdn.example.com/3.mp3" length="100" type="audio/mpeg"/>
      <itunes:duration>01:02:03</itunes:duration>
      <itunes:episode>30</itunes:episode>
    </item>
    <item>
      <title>Trailer without audio</title>
    </item>
    <item>
      <title>First</title>
      <description>Oldest</description>
      <pubDate>Tue, 05 Mar 2024 10:00:00 +0000</pubDate>
      <enclosure url="https://cdn.example.com/1.mp3" length="100" type="audio/mpeg"/>
      <itunes:duration>95</itunes:duration>
    </item>
  </channel>
</rss>`

func TestRSSFetchAllFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.xml")
	require.NoError(t, os.WriteFile(path, []byte(feedFixture), 0o644))

	src := NewRSS(Config{Location: path, Timeout: time.Second}, logger.Discard())
	assert.Equal(t, []string{path}, src.WatchPaths())

	episodes, err := src.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, episodes, 2)

	third := episodes[0]
	assert.Equal(t, "30", third.Number.String())
	assert.Equal(t, "Third", third.Title)
	assert.Equal(t, 3723, third.LengthInSeconds)
	assert.Equal(t, []models.Tag{"history", "law"}, third.Tags)
	assert.Equal(t, time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC).Unix(), third.CreateTime)

	first := episodes[1]
	assert.Equal(t, "1", first.Number.String(), "items without an episode number are numbered by position")
	assert.Equal(t, 95, first.LengthInSeconds)
	assert.Equal(t, "https://cdn.example.com/1.mp3", first.AudioLink)
}

func TestRSSFetchAllRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedFixture))
	}))
	t.Cleanup(srv.Close)

	src := NewRSS(Config{Location: srv.URL, Timeout: time.Second}, logger.Discard())
	assert.Empty(t, src.WatchPaths())

	episodes, err := src.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, episodes, 2)
}

func TestRSSFetchAllRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.xml")
	require.NoError(t, os.WriteFile(path, []byte("not a feed"), 0o644))

	_, err := NewRSS(Config{Location: path}, logger.Discard()).FetchAll(context.Background())
	assert.Error(t, err)

	_, err = NewRSS(Config{Location: filepath.Join(t.TempDir(), "missing.xml")}, logger.Discard()).FetchAll(context.Background())
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := map[string]int{
		"":          0,
		"95":        95,
		"01:35":     95,
		"1:02:03":   3723,
		"x:10":      0,
		"1:2:3:4":   0,
		" 00:00:07": 7,
	}
	for input, want := range tests {
		assert.Equal(t, want, parseDuration(input), input)
	}
}
