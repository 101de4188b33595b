package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewEpisodeNormalizesTags(t *testing.T) {
	ep := NewEpisode(IdentifierFromInt(1), "Title", "Desc", "http://example.com/1.mp3", 60, 1000,
		"philosophy", "", "Ethics", "philosophy", "ethics")

	assert.Equal(t, []Tag{"Ethics", "ethics", "philosophy"}, ep.Tags)
	assert.True(t, ep.HasTag("Ethics"))
	assert.True(t, ep.HasTag("ethics"))
	assert.False(t, ep.HasTag("ETHICS"))
	assert.False(t, ep.HasTag("history"))
}

func TestEpisodeEqualityUsesIdentifier(t *testing.T) {
	a := NewEpisode(IdentifierFromInt(5), "A", "", "", 0, 0)
	b := NewEpisode(IdentifierFromInt(5), "B", "other", "", 10, 20, "x")
	c := NewEpisode(IdentifierFromFloat(5), "A", "", "", 0, 0)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestEpisodePublishedAt(t *testing.T) {
	ep := NewEpisode(IdentifierFromInt(1), "", "", "", 0, 1700000000)
	assert.Equal(t, time.Date(2023, time.November, 14, 22, 13, 20, 0, time.UTC), ep.PublishedAt())
}

func TestParseTags(t *testing.T) {
	assert.Nil(t, ParseTags(""))
	assert.Nil(t, ParseTags("   "))
	assert.Equal(t, []Tag{"a", "b c", "d"}, ParseTags(" a, b c ,,d,"))
	assert.Equal(t, []string{"a", "b"}, TagStrings([]Tag{"a", "b"}))
}
