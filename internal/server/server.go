package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"episode-finder/internal/auth"
	"episode-finder/internal/catalog"
	"episode-finder/internal/feed"
	"episode-finder/internal/logger"
	"episode-finder/internal/models"
	"episode-finder/internal/search"
)

const defaultRecentLimit = 10

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "episode_finder",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route and status.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "status"})

// Catalog is the snapshot store served by the API.
type Catalog interface {
	Snapshot() *catalog.Snapshot
	Rebuild(ctx context.Context) error
}

// Options configures the handler.
type Options struct {
	Feed feed.Metadata
	// Admin guards the admin endpoints; nil leaves them unregistered.
	Admin *auth.AdminTokens
	Log *logrus.Entry
}

type serverHandler struct {
	catalog  Catalog
	searcher *search.Searcher
	feed     feed.Metadata
	log      *logrus.Entry
}

// New creates the HTTP handler exposing the catalog, search and feeds.
func New(store Catalog, searcher *search.Searcher, opts Options) http.Handler {
	if opts.Feed.Title == "" {
		opts.Feed.Title = "Episode Finder"
	}
	if opts.Feed.Description == "" {
		opts.Feed.Description = opts.Feed.Title
	}

	h := &serverHandler{
		catalog:  store,
		searcher: searcher,
		feed:     opts.Feed,
		log:      logger.OrDefault(opts.Log, "http"),
	}

	mux := http.NewServeMux()
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, instrument(pattern, fn))
	}

	handle("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	handle("GET /api/podcasts/{num}", h.handlePodcast)
	handle("GET /api/allPodcasts", h.handleAllPodcasts)
	handle("GET /api/recentPodcasts", h.handleRecent)
	handle("GET /api/recentPodcasts/rss", h.handleRecentFeed)
	handle("GET /api/allTags", h.handleAllTags)
	handle("GET /api/filteredTagsWithCounts", h.handleTagCounts)
	handle("GET /api/search/podcasts", h.handleSearch)
	handle("GET /api/search/podcasts/rss", h.handleSearchFeed)
	handle("GET /api/search/titles", h.handleTitleSearch)
	handle("GET /api/suggestions", h.handleSuggestions)

	if opts.Admin != nil {
		mux.Handle("POST /api/admin/rebuild", instrument("POST /api/admin/rebuild",
			opts.Admin.Require(http.HandlerFunc(h.handleRebuild))))
	}

	return logRequests(mux, h.log)
}

func (h *serverHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := h.catalog.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"episodes": snap.Len(),
		"builtAt":  snap.BuiltAt().UTC().Format(time.RFC3339),
		"search":   h.searcher.Mode().String(),
	})
}

func (h *serverHandler) handlePodcast(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseIdentifier(r.PathValue("num"))
	if err != nil {
		writeError(w, http.StatusNotFound, "podcast not found")
		return
	}

	ep, ok := h.catalog.Snapshot().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "podcast not found")
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (h *serverHandler) handleAllPodcasts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Snapshot().All())
}

func (h *serverHandler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query(), "limit", defaultRecentLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.catalog.Snapshot().Recent(limit))
}

func (h *serverHandler) handleRecentFeed(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query(), "limit", defaultRecentLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta := h.feed
	meta.SelfURL = requestURL(r)
	h.writeFeed(w, h.catalog.Snapshot().Recent(limit), meta)
}

func (h *serverHandler) handleAllTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Snapshot().AllTags())
}

func (h *serverHandler) handleTagCounts(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	offset, err := intParam(params, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := intParam(params, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := catalog.TagCountQuery{
		Selected: models.ParseTags(params.Get("tags")),
		Filter:   params.Get("filter"),
		Offset:   offset,
		Limit:    limit,
	}

	if params.Has("query") {
		query := params.Get("query")
		result, err := h.searcher.Search(r.Context(), search.Request{Query: &query, Tags: q.Selected})
		if err != nil {
			h.writeSearchError(w, err)
			return
		}
		q.Restrict = result.Numbers()
	}

	writeJSON(w, http.StatusOK, h.catalog.Snapshot().TagCounts(q))
}

func (h *serverHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.searcher.Search(r.Context(), req)
	if err != nil {
		h.writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *serverHandler) handleSearchFeed(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.searcher.Search(r.Context(), req)
	if err != nil {
		h.writeSearchError(w, err)
		return
	}

	subject := describeSearch(req)
	meta := h.feed
	meta.Title = h.feed.Title + " Custom Feed: " + subject
	meta.Description = "A generated feed containing all episodes about: " + subject
	meta.SelfURL = requestURL(r)
	h.writeFeed(w, result.Hits, meta)
}

func (h *serverHandler) handleTitleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	limit, err := intParam(params, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := intParam(params, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.catalog.Snapshot().SearchTitles(params.Get("query"), limit, offset))
}

func (h *serverHandler) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	limit, err := intParam(params, "limit", search.DefaultSuggestions)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	titles := h.catalog.Snapshot().Titles()
	writeJSON(w, http.StatusOK, h.searcher.Suggest(params.Get("query"), titles, limit))
}

func (h *serverHandler) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Rebuild(r.Context()); err != nil {
		h.log.WithError(err).Error("Requested rebuild failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	snap := h.catalog.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"episodes": snap.Len(),
		"builtAt":  snap.BuiltAt().UTC().Format(time.RFC3339),
	})
}

func (h *serverHandler) writeSearchError(w http.ResponseWriter, err error) {
	if errors.Is(err, search.ErrSearchUnavailable) {
		h.log.WithError(err).Warn("Search engine unavailable")
		writeError(w, http.StatusServiceUnavailable, "search is temporarily unavailable")
		return
	}
	h.log.WithError(err).Error("Search failed")
	writeError(w, http.StatusInternalServerError, "search failed")
}

func (h *serverHandler) writeFeed(w http.ResponseWriter, episodes []models.Episode, meta feed.Metadata) {
	data, err := feed.Render(episodes, meta)
	if err != nil {
		h.log.WithError(err).Error("Failed to build RSS feed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		h.log.WithError(err).Debug("Failed to write RSS feed")
	}
}

// parseSearchRequest reads query, tags, limit, offset, minLength and
// maxLength. A query parameter that is present but empty is kept.
func parseSearchRequest(params url.Values) (search.Request, error) {
	req := search.Request{Tags: models.ParseTags(params.Get("tags"))}
	if params.Has("query") {
		query := params.Get("query")
		req.Query = &query
	}

	var err error
	if req.Limit, err = optionalIntParam(params, "limit"); err != nil {
		return search.Request{}, err
	}
	if req.Offset, err = intParam(params, "offset", 0); err != nil {
		return search.Request{}, err
	}
	if req.MinLength, err = optionalIntParam(params, "minLength"); err != nil {
		return search.Request{}, err
	}
	if req.MaxLength, err = optionalIntParam(params, "maxLength"); err != nil {
		return search.Request{}, err
	}
	return req, nil
}

func describeSearch(req search.Request) string {
	parts := make([]string, 0, 2)
	if req.Query != nil && *req.Query != "" {
		parts = append(parts, *req.Query)
	}
	if len(req.Tags) > 0 {
		parts = append(parts, strings.Join(models.TagStrings(req.Tags), ", "))
	}
	return strings.Join(parts, " / ")
}

func intParam(params url.Values, name string, fallback int) (int, error) {
	value, err := optionalIntParam(params, name)
	if err != nil || value == nil {
		return fallback, err
	}
	return *value, nil
}

func optionalIntParam(params url.Values, name string) (*int, error) {
	raw := strings.TrimSpace(params.Get(name))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, errors.Errorf("%s must be a non-negative integer", name)
	}
	return &n, nil
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); forwarded != "" {
		scheme = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	} else if r.TLS != nil {
		scheme = "https"
	}
	if r.Host == "" {
		return ""
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}
	return u.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func logRequests(next http.Handler, log *logrus.Entry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		log.Debugf("%s %s -> %d (%dB) in %s", r.Method, r.URL.Path, sw.status, sw.size, time.Since(start))
	})
}

func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw, ok := w.(*statusWriter)
		if !ok {
			sw = &statusWriter{ResponseWriter: w, status: http.StatusOK}
		}
		start := time.Now()
		next.ServeHTTP(sw, r)
		requestDuration.WithLabelValues(route, strconv.Itoa(sw.status)).Observe(time.Since(start).Seconds())
	})
}
