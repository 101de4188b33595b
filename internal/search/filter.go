package search

import (
	"strconv"
	"strings"

	"episode-finder/internal/models"
)

const (
	fieldTags   = "tags"
	fieldLength = "lengthInSeconds"
	fieldNumber = "podcastNumber"
)

// sortNewestFirst orders engine hits by episode number, descending.
var sortNewestFirst = []string{fieldNumber + ":desc"}

// BuildFilter renders the engine filter expression for an exact match on
// every tag and an inclusive length range. Clauses are AND-joined in the
// order tags, minimum, maximum; no constraints yield an empty string.
func BuildFilter(tags []models.Tag, minLength, maxLength *int) string {
	clauses := make([]string, 0, len(tags)+2)
	for _, tag := range tags {
		clauses = append(clauses, fieldTags+" = "+quoteFilterValue(string(tag)))
	}
	if minLength != nil {
		clauses = append(clauses, fieldLength+" > "+strconv.Itoa(*minLength-1))
	}
	if maxLength != nil {
		clauses = append(clauses, fieldLength+" < "+strconv.Itoa(*maxLength+1))
	}
	return strings.Join(clauses, " AND ")
}

var filterEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quoteFilterValue(value string) string {
	return `"` + filterEscaper.Replace(value) + `"`
}
