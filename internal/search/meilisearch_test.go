package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"episode-finder/internal/logger"
	"episode-finder/internal/models"
)

type recordedCall struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeMeilisearch imitates the REST endpoints the client uses. Every write
// becomes a task that succeeds on the first poll, except deleting an index
// that does not exist.
type fakeMeilisearch struct {
	t *testing.T

	mu          sync.Mutex
	calls       []recordedCall
	nextTask    int64
	failedTasks map[int64]string
	indexExists bool
	searchBody  meiliSearchRequest
}

func (f *fakeMeilisearch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})

	if r.Header.Get("Authorization") != "Bearer secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/tasks/"):
		var id int64
		_, _ = fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/tasks/"), "%d", &id)
		if code, failed := f.failedTasks[id]; failed {
			writeJSON(w, http.StatusOK, map[string]any{
				"uid": id, "status": "failed",
				"error": map[string]string{"code": code, "message": "task failed"},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"uid": id, "status": "succeeded"})

	case r.URL.Path == "/indexes/podcasts/search":
		assert.NoError(f.t, json.Unmarshal(body, &f.searchBody))
		writeJSON(w, http.StatusOK, map[string]any{
			"hits": []map[string]any{
				{"title": "Two", "podcastNumber": 2, "lengthInSeconds": 120, "tags": []string{"a"}, "podcastNumberHash": "x"},
				{"title": "One", "podcastNumber": 1.5, "lengthInSeconds": 60, "tags": []string{}},
			},
			"estimatedTotalHits": 40,
			"processingTimeMs":   7,
		})

	default:
		f.nextTask++
		id := f.nextTask
		if r.Method == http.MethodDelete && !f.indexExists {
			f.failedTasks[id] = "index_not_found"
		}
		if r.Method == http.MethodPost && r.URL.Path == "/indexes" {
			f.indexExists = true
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"taskUid": id, "status": "enqueued"})
	}
}

func (f *fakeMeilisearch) recorded() ([]recordedCall, meiliSearchRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...), f.searchBody
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newFakeMeilisearch(t *testing.T) (*fakeMeilisearch, *Meilisearch) {
	t.Helper()
	fake := &fakeMeilisearch{t: t, failedTasks: map[int64]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewMeilisearch(MeilisearchConfig{
		Host:        srv.URL + "/",
		APIKey:      "secret",
		TaskTimeout: 2 * time.Second,
	}, srv.Client(), logger.Discard())
	require.NoError(t, err)
	return fake, client
}

func TestMeilisearchSearch(t *testing.T) {
	fake, client := newFakeMeilisearch(t)

	result, err := client.Search(context.Background(), EngineQuery{
		Query:  strPtr("liberty"),
		Filter: `tags = "a"`,
		Sort:   sortNewestFirst,
		Offset: 3,
		Limit:  UnboundedLimit,
	})
	require.NoError(t, err)

	assert.Equal(t, 40, result.TotalHits)
	assert.True(t, result.TotalHitsIsApproximate)
	assert.Equal(t, 7, result.ProcessingTimeMs)
	require.Len(t, result.Hits, 2)
	assert.Equal(t, "2", result.Hits[0].Number.String())
	assert.Equal(t, "1.5", result.Hits[1].Number.String())
	assert.Equal(t, []models.Tag{"a"}, result.Hits[0].Tags)

	_, body := fake.recorded()
	require.NotNil(t, body.Q)
	assert.Equal(t, "liberty", *body.Q)
	assert.Equal(t, `tags = "a"`, body.Filter)
	assert.Equal(t, []string{"podcastNumber:desc"}, body.Sort)
	assert.Equal(t, 3, body.Offset)
	assert.Equal(t, UnboundedLimit, body.Limit)
}

func TestMeilisearchResetRecreatesIndex(t *testing.T) {
	fake, client := newFakeMeilisearch(t)

	require.NoError(t, client.Reset(context.Background()))

	calls, _ := fake.recorded()
	var writes []string
	for _, call := range calls {
		if call.Method != http.MethodGet {
			writes = append(writes, call.Method+" "+call.Path)
		}
	}
	assert.Equal(t, []string{
		"DELETE /indexes/podcasts",
		"POST /indexes",
		"PUT /indexes/podcasts/settings/filterable-attributes",
		"PUT /indexes/podcasts/settings/sortable-attributes",
	}, writes)

	for _, call := range calls {
		switch call.Path {
		case "/indexes":
			assert.JSONEq(t, `{"uid":"podcasts","primaryKey":"podcastNumberHash"}`, call.Body)
		case "/indexes/podcasts/settings/filterable-attributes":
			assert.JSONEq(t, `["tags","lengthInSeconds"]`, call.Body)
		case "/indexes/podcasts/settings/sortable-attributes":
			assert.JSONEq(t, `["podcastNumber"]`, call.Body)
		}
	}
}

func TestMeilisearchIngestAddsHashedDocuments(t *testing.T) {
	fake, client := newFakeMeilisearch(t)

	episodes := []models.Episode{
		models.NewEpisode(models.IdentifierFromInt(1), "One", "", "https://cdn/1.mp3", 60, 100, "a"),
		models.NewEpisode(models.IdentifierFromFloat(1.5), "One and a half", "", "https://cdn/1.5.mp3", 90, 150),
	}
	require.NoError(t, client.Ingest(context.Background(), episodes))
	require.NoError(t, client.Ingest(context.Background(), nil))

	calls, _ := fake.recorded()
	var docsCall *recordedCall
	for i := range calls {
		if calls[i].Path == "/indexes/podcasts/documents" {
			docsCall = &calls[i]
		}
	}
	require.NotNil(t, docsCall)
	assert.Equal(t, "primaryKey=podcastNumberHash", docsCall.Query)

	var docs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(docsCall.Body), &docs))
	require.Len(t, docs, 2)
	assert.Equal(t, "One", docs[0]["title"])
	assert.Equal(t, DocumentKey(episodes[0].Number), docs[0]["podcastNumberHash"])
	assert.EqualValues(t, 1.5, docs[1]["podcastNumber"])
	assert.NotEqual(t, docs[0]["podcastNumberHash"], docs[1]["podcastNumberHash"])
}

func TestMeilisearchSurfacesTaskFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/tasks/") {
			writeJSON(w, http.StatusOK, map[string]any{
				"uid": 1, "status": "failed",
				"error": map[string]string{"code": "invalid_document_id", "message": "bad id"},
			})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"taskUid": 1})
	}))
	t.Cleanup(srv.Close)

	client, err := NewMeilisearch(MeilisearchConfig{Host: srv.URL}, srv.Client(), logger.Discard())
	require.NoError(t, err)

	err = client.Ingest(context.Background(), []models.Episode{models.MockEpisode(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad id")
}

func TestMeilisearchRequiresHost(t *testing.T) {
	_, err := NewMeilisearch(MeilisearchConfig{}, nil, nil)
	assert.Error(t, err)
}

func TestDocumentKeyFollowsCanonicalText(t *testing.T) {
	twelve, err := models.ParseIdentifier("12")
	require.NoError(t, err)
	twelvePointZero, err := models.ParseIdentifier("12.0")
	require.NoError(t, err)

	assert.Equal(t, DocumentKey(twelve), DocumentKey(models.IdentifierFromInt(12)))
	assert.NotEqual(t, DocumentKey(twelve), DocumentKey(twelvePointZero))
}
