package search

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"episode-finder/internal/catalog"
	"episode-finder/internal/logger"
	"episode-finder/internal/models"
)

// ErrSearchUnavailable marks failures of the full-text engine, as opposed to
// a search that simply found nothing.
var ErrSearchUnavailable = errors.New("search engine unavailable")

type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string { return ErrSearchUnavailable.Error() + ": " + e.cause.Error() }
func (e *unavailableError) Unwrap() error { return e.cause }
func (e *unavailableError) Is(target error) bool {
	return target == ErrSearchUnavailable
}

var searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "episode_finder",
	Subsystem: "search",
	Name:      "duration_seconds",
	Help:      "Search request latency including cache lookups.",
	Buckets:   prometheus.DefBuckets,
}, []string{"mode", "outcome"})

// Engine is a full-text search backend.
type Engine interface {
	Search(ctx context.Context, q EngineQuery) (Result, error)
	// Reset drops and recreates the index.
	Reset(ctx context.Context) error
	// Ingest loads episodes into the index. Earlier episodes rank higher.
	Ingest(ctx context.Context, episodes []models.Episode) error
}

// EngineQuery is a single request to an Engine.
type EngineQuery struct {
	Query  *string
	Filter string
	Sort   []string
	Offset int
	Limit  int
}

// Request is a search as issued by API callers.
type Request struct {
	Query     *string
	Tags      []models.Tag
	Limit     *int
	Offset    int
	MinLength *int
	MaxLength *int
}

// Mode selects how a Searcher answers requests. It is fixed at construction.
type Mode int

const (
	ModeMock Mode = iota
	ModeEngine
)

func (m Mode) String() string {
	if m == ModeEngine {
		return "engine"
	}
	return "mock"
}

// Searcher answers search requests either through an engine and result
// cache or from the fixed mock result set.
type Searcher struct {
	mode   Mode
	engine Engine
	cache  *ResultCache
	log    *logrus.Entry

	// indexErr is set while the engine index may be empty or partial after
	// a failed reindex.
	indexMu  sync.RWMutex
	indexErr error
}

// NewEngineSearcher returns a searcher backed by engine with a result cache
// of the given capacity.
func NewEngineSearcher(engine Engine, capacity int, log *logrus.Entry) *Searcher {
	return &Searcher{
		mode:   ModeEngine,
		engine: engine,
		cache:  NewResultCache(capacity),
		log:    logger.OrDefault(log, "search"),
	}
}

// NewMockSearcher returns a searcher that ignores its input and always
// answers with the mock result set.
func NewMockSearcher(log *logrus.Entry) *Searcher {
	return &Searcher{
		mode:  ModeMock,
		cache: NewResultCache(0),
		log:   logger.OrDefault(log, "search"),
	}
}

// Mode reports how the searcher answers requests.
func (s *Searcher) Mode() Mode {
	return s.mode
}

// Cache exposes the result cache.
func (s *Searcher) Cache() *ResultCache {
	return s.cache
}

// Search runs req. Engine failures are returned wrapping
// ErrSearchUnavailable.
func (s *Searcher) Search(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	if s.mode == ModeMock {
		searchDuration.WithLabelValues(s.mode.String(), "ok").Observe(time.Since(start).Seconds())
		return MockResult(), nil
	}

	if err := s.indexFailure(); err != nil {
		searchDuration.WithLabelValues(s.mode.String(), "error").Observe(time.Since(start).Seconds())
		return Result{}, &unavailableError{cause: errors.Wrap(err, "index incomplete")}
	}

	tags := models.NormalizeTags(req.Tags)
	filter := BuildFilter(tags, req.MinLength, req.MaxLength)
	key := Key{Query: req.Query, Tags: tags, MinLength: req.MinLength, MaxLength: req.MaxLength}

	result, err := s.cache.Search(ctx, key, req.Limit, req.Offset, func(ctx context.Context, limit, offset int) (Result, error) {
		return s.engine.Search(ctx, EngineQuery{
			Query:  req.Query,
			Filter: filter,
			Sort:   sortNewestFirst,
			Offset: offset,
			Limit:  limit,
		})
	})
	if err != nil {
		searchDuration.WithLabelValues(s.mode.String(), "error").Observe(time.Since(start).Seconds())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, &unavailableError{cause: err}
	}

	searchDuration.WithLabelValues(s.mode.String(), "ok").Observe(time.Since(start).Seconds())
	s.log.Tracef("Search %s returned %d hits", key, len(result.Hits))
	return result, nil
}

// Reindex replaces the engine index with episodes, which are expected newest
// first, and drops every cached result. It is a no-op in mock mode.
//
// A failed reindex leaves the index in an unknown state, so searches fail
// with ErrSearchUnavailable until a later reindex succeeds.
func (s *Searcher) Reindex(ctx context.Context, episodes []models.Episode) error {
	if s.mode == ModeMock {
		return nil
	}

	start := time.Now()
	if err := s.engine.Reset(ctx); err != nil {
		return s.failIndex(errors.Wrap(err, "reset index"))
	}

	// The engine ranks earlier documents first, so ingest oldest first.
	ordered := slices.Clone(episodes)
	slices.Reverse(ordered)
	if err := s.engine.Ingest(ctx, ordered); err != nil {
		return s.failIndex(errors.Wrap(err, "ingest episodes"))
	}

	s.indexMu.Lock()
	s.indexErr = nil
	s.indexMu.Unlock()
	s.cache.Purge()
	s.log.Infof("Indexed %s episodes in %s", humanize.Comma(int64(len(episodes))), time.Since(start).Truncate(time.Millisecond))
	return nil
}

// RebuildHook reindexes every catalog rebuild before it is published.
func (s *Searcher) RebuildHook() catalog.RebuildHook {
	return func(ctx context.Context, snap *catalog.Snapshot) error {
		return s.Reindex(ctx, snap.All())
	}
}

// Suggest completes the last word of query from the given titles. Mock mode
// returns fixed suggestions.
func (s *Searcher) Suggest(query string, titles []string, n int) []string {
	if s.mode == ModeMock {
		return MockSuggestions()
	}
	return Suggest(query, titles, n)
}

func (s *Searcher) failIndex(err error) error {
	s.indexMu.Lock()
	s.indexErr = err
	s.indexMu.Unlock()
	s.cache.Purge()
	s.log.WithError(err).Error("Search index is incomplete, searches will fail until the next successful reindex")
	return &unavailableError{cause: err}
}

func (s *Searcher) indexFailure() error {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return s.indexErr
}
