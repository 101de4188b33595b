package catalog

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"episode-finder/internal/models"
)

// Snapshot is an immutable, fully indexed view of the catalog.
//
// Episodes live once in an arena sorted by identifier, highest first. The
// identifier index and the tag index both refer to arena positions, so every
// index shares the same episode values. Tag posting lists are ascending, which
// is also catalog order.
type Snapshot struct {
	episodes []models.Episode
	byID     map[string]int
	byTag    map[models.Tag][]int
	builtAt  time.Time
}

// Build indexes episodes. Later duplicates of an identifier replace earlier
// ones. Build never fails; an empty input yields an empty snapshot.
func Build(episodes []models.Episode) *Snapshot {
	seen := make(map[string]int, len(episodes))
	arena := make([]models.Episode, 0, len(episodes))
	for _, ep := range episodes {
		ep.Tags = models.NormalizeTags(ep.Tags)
		if i, ok := seen[ep.Number.Key()]; ok {
			arena[i] = ep
			continue
		}
		seen[ep.Number.Key()] = len(arena)
		arena = append(arena, ep)
	}

	sort.SliceStable(arena, func(i, j int) bool {
		return arena[i].Number.Compare(arena[j].Number) > 0
	})

	s := &Snapshot{
		episodes: arena,
		byID:     make(map[string]int, len(arena)),
		byTag:    make(map[models.Tag][]int),
		builtAt:  time.Now().UTC(),
	}
	for i, ep := range arena {
		s.byID[ep.Number.Key()] = i
		for _, tag := range ep.Tags {
			s.byTag[tag] = append(s.byTag[tag], i)
		}
	}
	return s
}

// Len returns the number of episodes.
func (s *Snapshot) Len() int {
	return len(s.episodes)
}

// BuiltAt returns when the snapshot was indexed.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// Get looks up an episode by identifier.
func (s *Snapshot) Get(id models.Identifier) (models.Episode, bool) {
	i, ok := s.byID[id.Key()]
	if !ok {
		return models.Episode{}, false
	}
	return s.episodes[i], true
}

// All returns every episode, highest identifier first.
func (s *Snapshot) All() []models.Episode {
	return s.Recent(len(s.episodes))
}

// Recent returns the first n episodes of the catalog.
func (s *Snapshot) Recent(n int) []models.Episode {
	if n <= 0 {
		return []models.Episode{}
	}
	if n > len(s.episodes) {
		n = len(s.episodes)
	}
	out := make([]models.Episode, n)
	copy(out, s.episodes[:n])
	return out
}

// ByTags returns the episodes carrying every tag, in catalog order. No tags
// means no filter. An unknown tag short-circuits to an empty result.
func (s *Snapshot) ByTags(tags ...models.Tag) []models.Episode {
	if len(tags) == 0 {
		return s.All()
	}
	return s.collect(s.positions(tags))
}

// AllTags returns every indexed tag, sorted case-insensitively.
func (s *Snapshot) AllTags() []models.Tag {
	tags := make([]models.Tag, 0, len(s.byTag))
	for tag := range s.byTag {
		tags = append(tags, tag)
	}

	folded := foldAll(tags)
	sort.Slice(tags, func(i, j int) bool {
		fi, fj := folded[tags[i]], folded[tags[j]]
		if fi != fj {
			return fi < fj
		}
		return tags[i] < tags[j]
	})
	return tags
}

// SearchTitles matches query case-insensitively against titles in catalog
// order, skipping the first skip matches. A non-positive limit returns all.
func (s *Snapshot) SearchTitles(query string, limit, skip int) []models.Episode {
	caser := cases.Fold()
	needle := caser.String(query)
	out := []models.Episode{}
	for _, ep := range s.episodes {
		if !strings.Contains(caser.String(ep.Title), needle) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, ep)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Titles returns every title in catalog order.
func (s *Snapshot) Titles() []string {
	titles := make([]string, len(s.episodes))
	for i, ep := range s.episodes {
		titles[i] = ep.Title
	}
	return titles
}

// positions intersects the posting lists of tags, starting from the last
// tag. The result is ascending.
func (s *Snapshot) positions(tags []models.Tag) []int {
	if len(tags) == 0 {
		all := make([]int, len(s.episodes))
		for i := range all {
			all[i] = i
		}
		return all
	}

	for _, tag := range tags {
		if len(s.byTag[tag]) == 0 {
			return nil
		}
	}

	last := s.byTag[tags[len(tags)-1]]
	result := make([]int, len(last))
	copy(result, last)

	for _, tag := range tags[:len(tags)-1] {
		result = intersectSorted(result, s.byTag[tag])
		if len(result) == 0 {
			return nil
		}
	}
	return result
}

func (s *Snapshot) collect(positions []int) []models.Episode {
	out := make([]models.Episode, len(positions))
	for i, pos := range positions {
		out[i] = s.episodes[pos]
	}
	return out
}

// intersectSorted keeps the elements of a that also appear in b, reusing a.
func intersectSorted(a, b []int) []int {
	out := a[:0]
	j := 0
	for _, v := range a {
		for j < len(b) && b[j] < v {
			j++
		}
		if j == len(b) {
			break
		}
		if b[j] == v {
			out = append(out, v)
		}
	}
	return out
}

func foldAll(tags []models.Tag) map[models.Tag]string {
	caser := cases.Fold()
	folded := make(map[models.Tag]string, len(tags))
	for _, tag := range tags {
		folded[tag] = caser.String(string(tag))
	}
	return folded
}
