package catalog

import (
	"sort"
	"strings"

	"github.com/scylladb/go-set/strset"
	"golang.org/x/text/cases"

	"episode-finder/internal/models"
)

// TagCount is a facet entry: how many pooled episodes carry Tag.
type TagCount struct {
	Tag   models.Tag `json:"tag"`
	Count int        `json:"count"`
}

// TagCountQuery selects the pool of episodes to count and pages the result.
type TagCountQuery struct {
	// Selected narrows the pool to episodes carrying every tag; these tags
	// are never reported back.
	Selected []models.Tag
	// Restrict, when non-nil, further narrows the pool to these identifier keys.
	Restrict map[string]struct{}
	// Filter keeps only tags containing this text, case-insensitively.
	Filter string
	Offset int
	// Limit caps the page size; zero or negative means no cap.
	Limit int
}

// TagCountPage is one page of facet counts.
type TagCountPage struct {
	Tags []TagCount `json:"tags"`
	// Total is the number of entries after filtering, before paging.
	Total int `json:"total"`
	// Remaining is the number of entries after this page.
	Remaining int `json:"remaining"`
}

// TagCounts counts the tags on episodes matching q.Selected (and q.Restrict),
// excluding the selected tags themselves. Entries are ordered by count
// descending, then by tag text case-insensitively.
func (s *Snapshot) TagCounts(q TagCountQuery) TagCountPage {
	counts := make(map[models.Tag]int)
	for _, pos := range s.positions(q.Selected) {
		ep := s.episodes[pos]
		if q.Restrict != nil {
			if _, ok := q.Restrict[ep.Number.Key()]; !ok {
				continue
			}
		}
		for _, tag := range ep.Tags {
			counts[tag]++
		}
	}

	selected := strset.New(models.TagStrings(q.Selected)...)
	entries := make([]TagCount, 0, len(counts))
	for tag, count := range counts {
		if selected.Has(string(tag)) {
			continue
		}
		entries = append(entries, TagCount{Tag: tag, Count: count})
	}

	tags := make([]models.Tag, len(entries))
	for i, entry := range entries {
		tags[i] = entry.Tag
	}
	folded := foldAll(tags)

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if folded[a.Tag] != folded[b.Tag] {
			return folded[a.Tag] < folded[b.Tag]
		}
		return a.Tag < b.Tag
	})

	if filter := strings.TrimSpace(q.Filter); filter != "" {
		needle := cases.Fold().String(filter)
		kept := entries[:0]
		for _, entry := range entries {
			if strings.Contains(folded[entry.Tag], needle) {
				kept = append(kept, entry)
			}
		}
		entries = kept
	}

	total := len(entries)
	start := min(max(q.Offset, 0), total)
	end := total
	if q.Limit > 0 {
		end = start + min(q.Limit, total-start)
	}

	page := make([]TagCount, end-start)
	copy(page, entries[start:end])
	return TagCountPage{
		Tags:      page,
		Total:     total,
		Remaining: total - end,
	}
}
