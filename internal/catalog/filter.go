package catalog

import (
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"

	"episode-finder/internal/models"
)

// filterEnv is the environment ingestion filter expressions evaluate against.
type filterEnv struct {
	Number          float64
	Title           string
	Description     string
	AudioLink       string
	LengthInSeconds int
	CreateTime      int64
	Tags            []string
}

type compiledFilter struct {
	Text    string
	Program *vm.Program
}

// Filters drops episodes during ingestion. An episode is excluded when any
// expression evaluates to true, e.g. `LengthInSeconds < 60` or
// `"trailer" in Tags`.
type Filters struct {
	compiled []compiledFilter
}

// CompileFilters compiles each non-blank expression.
func CompileFilters(expressions []string) (*Filters, error) {
	f := &Filters{}
	for _, text := range expressions {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		program, err := expr.Compile(text, expr.Env(filterEnv{}), expr.AsBool())
		if err != nil {
			return nil, errors.Wrapf(err, "compile ingestion filter %q", text)
		}
		f.compiled = append(f.compiled, compiledFilter{Text: text, Program: program})
	}
	return f, nil
}

// Len returns the number of compiled expressions.
func (f *Filters) Len() int {
	if f == nil {
		return 0
	}
	return len(f.compiled)
}

// Excludes reports whether ep matches any expression, and which one.
func (f *Filters) Excludes(ep models.Episode) (bool, string, error) {
	if f.Len() == 0 {
		return false, "", nil
	}

	env := filterEnv{
		Number:          ep.Number.Float(),
		Title:           ep.Title,
		Description:     ep.Description,
		AudioLink:       ep.AudioLink,
		LengthInSeconds: ep.LengthInSeconds,
		CreateTime:      ep.CreateTime,
		Tags:            models.TagStrings(ep.Tags),
	}

	for _, filter := range f.compiled {
		result, err := expr.Run(filter.Program, env)
		if err != nil {
			return false, "", errors.Wrapf(err, "evaluate %q for episode %s", filter.Text, ep.Number)
		}
		if matched, ok := result.(bool); ok && matched {
			return true, filter.Text, nil
		}
	}
	return false, "", nil
}

// Apply returns the episodes no expression excludes.
func (f *Filters) Apply(episodes []models.Episode) ([]models.Episode, error) {
	if f.Len() == 0 {
		return episodes, nil
	}

	kept := make([]models.Episode, 0, len(episodes))
	for _, ep := range episodes {
		excluded, _, err := f.Excludes(ep)
		if err != nil {
			return nil, err
		}
		if !excluded {
			kept = append(kept, ep)
		}
	}
	return kept, nil
}
