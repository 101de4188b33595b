package models

import (
	"sort"
	"time"

	"github.com/scylladb/go-set/strset"
)

// Episode represents one podcast episode in the catalog. Episodes are shared
// between every index of a snapshot and must be treated as read-only.
type Episode struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	AudioLink       string     `json:"audioLink"`
	LengthInSeconds int        `json:"lengthInSeconds"`
	Number          Identifier `json:"podcastNumber"`
	CreateTime      int64      `json:"createTime"`
	Tags            []Tag      `json:"tags"`
}

// NewEpisode builds an episode with a deduplicated, sorted tag set.
func NewEpisode(number Identifier, title, description, audioLink string, lengthInSeconds int, createTime int64, tags ...Tag) Episode {
	return Episode{
		Title:           title,
		Description:     description,
		AudioLink:       audioLink,
		LengthInSeconds: lengthInSeconds,
		Number:          number,
		CreateTime:      createTime,
		Tags:            NormalizeTags(tags),
	}
}

// NormalizeTags removes empty and duplicate tags and sorts the remainder.
func NormalizeTags(tags []Tag) []Tag {
	set := strset.NewWithSize(len(tags))
	for _, tag := range tags {
		if tag != "" {
			set.Add(string(tag))
		}
	}

	values := set.List()
	sort.Strings(values)

	out := make([]Tag, len(values))
	for i, value := range values {
		out[i] = Tag(value)
	}
	return out
}

// Equal reports whether both episodes share an identifier.
func (e Episode) Equal(other Episode) bool {
	return e.Number.Equal(other.Number)
}

// HasTag reports whether the episode carries tag.
func (e Episode) HasTag(tag Tag) bool {
	i := sort.Search(len(e.Tags), func(i int) bool { return e.Tags[i] >= tag })
	return i < len(e.Tags) && e.Tags[i] == tag
}

// PublishedAt converts the stored epoch seconds into a UTC time.
func (e Episode) PublishedAt() time.Time {
	return time.Unix(e.CreateTime, 0).UTC()
}
