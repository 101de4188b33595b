package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"episode-finder/internal/httputils"
	"episode-finder/internal/logger"
	"episode-finder/internal/models"
)

const (
	DefaultIndex       = "podcasts"
	primaryKeyField    = "podcastNumberHash"
	defaultTaskTimeout = 60 * time.Second
	taskPollInterval   = 50 * time.Millisecond
)

// MeilisearchConfig locates a Meilisearch instance.
type MeilisearchConfig struct {
	Host        string
	APIKey      string
	Index       string
	Timeout     time.Duration
	TaskTimeout time.Duration
}

// Meilisearch is an Engine backed by the Meilisearch REST API.
type Meilisearch struct {
	cfg    MeilisearchConfig
	client *http.Client
	log    *logrus.Entry
}

// NewMeilisearch returns a client for cfg. A nil client gets a retrying one.
func NewMeilisearch(cfg MeilisearchConfig, client *http.Client, log *logrus.Entry) (*Meilisearch, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("meilisearch host is required")
	}
	if _, err := url.Parse(cfg.Host); err != nil {
		return nil, errors.Wrapf(err, "parse meilisearch host %q", cfg.Host)
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaultTaskTimeout
	}

	log = logger.OrDefault(log, "meilisearch")
	if client == nil {
		client = httputils.NewRetryableHttpClient(cfg.Timeout, nil, log)
	}

	return &Meilisearch{cfg: cfg, client: client, log: log}, nil
}

type meiliTask struct {
	TaskUID int64  `json:"taskUid"`
	UID     *int64 `json:"uid,omitempty"`
	Status  string `json:"status"`
	Type    string `json:"type"`
	Error   *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (t meiliTask) id() int64 {
	if t.UID != nil {
		return *t.UID
	}
	return t.TaskUID
}

type meiliSearchRequest struct {
	Q      *string  `json:"q,omitempty"`
	Filter string   `json:"filter,omitempty"`
	Sort   []string `json:"sort,omitempty"`
	Offset int      `json:"offset"`
	Limit  int      `json:"limit"`
}

type meiliSearchResponse struct {
	Hits               []models.Episode `json:"hits"`
	EstimatedTotalHits int              `json:"estimatedTotalHits"`
	ProcessingTimeMs   int              `json:"processingTimeMs"`
}

type meiliDocument struct {
	models.Episode
	Hash string `json:"podcastNumberHash"`
}

// DocumentKey returns the primary key stored for an episode.
func DocumentKey(id models.Identifier) string {
	return strconv.FormatUint(xxhash.Sum64String(id.Key()), 10)
}

// Search runs q against the index.
func (m *Meilisearch) Search(ctx context.Context, q EngineQuery) (Result, error) {
	var resp meiliSearchResponse
	req := meiliSearchRequest{
		Q:      q.Query,
		Filter: q.Filter,
		Sort:   q.Sort,
		Offset: q.Offset,
		Limit:  q.Limit,
	}
	if err := m.do(ctx, http.MethodPost, m.indexPath("search"), req, &resp); err != nil {
		return Result{}, errors.Wrap(err, "search")
	}

	hits := resp.Hits
	if hits == nil {
		hits = []models.Episode{}
	}
	return Result{
		Hits:                   hits,
		TotalHits:              resp.EstimatedTotalHits,
		TotalHitsIsApproximate: true,
		ProcessingTimeMs:       resp.ProcessingTimeMs,
	}, nil
}

// Reset deletes the index and recreates it with the filterable and sortable
// attributes searches rely on.
func (m *Meilisearch) Reset(ctx context.Context) error {
	task, err := m.enqueue(ctx, http.MethodDelete, "/indexes/"+url.PathEscape(m.cfg.Index), nil)
	if err != nil && !httputils.IsStatus(err, http.StatusNotFound) {
		return errors.Wrap(err, "delete index")
	}
	if err == nil {
		if err := m.waitForTask(ctx, task); err != nil && !isIndexNotFound(err) {
			return errors.Wrap(err, "delete index")
		}
	}

	body := map[string]string{"uid": m.cfg.Index, "primaryKey": primaryKeyField}
	if err := m.run(ctx, http.MethodPost, "/indexes", body); err != nil {
		return errors.Wrap(err, "create index")
	}
	if err := m.run(ctx, http.MethodPut, m.indexPath("settings/filterable-attributes"), []string{fieldTags, fieldLength}); err != nil {
		return errors.Wrap(err, "set filterable attributes")
	}
	if err := m.run(ctx, http.MethodPut, m.indexPath("settings/sortable-attributes"), []string{fieldNumber}); err != nil {
		return errors.Wrap(err, "set sortable attributes")
	}

	m.log.Debugf("Index %s reset", m.cfg.Index)
	return nil
}

// Ingest adds episodes to the index in the order given.
func (m *Meilisearch) Ingest(ctx context.Context, episodes []models.Episode) error {
	if len(episodes) == 0 {
		return nil
	}

	docs := make([]meiliDocument, len(episodes))
	for i, ep := range episodes {
		docs[i] = meiliDocument{Episode: ep, Hash: DocumentKey(ep.Number)}
	}

	path := m.indexPath("documents") + "?primaryKey=" + primaryKeyField
	if err := m.run(ctx, http.MethodPost, path, docs); err != nil {
		return errors.Wrapf(err, "add %d documents", len(docs))
	}
	return nil
}

func (m *Meilisearch) indexPath(suffix string) string {
	return "/indexes/" + url.PathEscape(m.cfg.Index) + "/" + suffix
}

// run enqueues a task and waits for it to finish.
func (m *Meilisearch) run(ctx context.Context, method, path string, body any) error {
	task, err := m.enqueue(ctx, method, path, body)
	if err != nil {
		return err
	}
	return m.waitForTask(ctx, task)
}

func (m *Meilisearch) enqueue(ctx context.Context, method, path string, body any) (meiliTask, error) {
	var task meiliTask
	if err := m.do(ctx, method, path, body, &task); err != nil {
		return meiliTask{}, err
	}
	return task, nil
}

type taskFailedError struct {
	id      int64
	code    string
	message string
}

func (e *taskFailedError) Error() string {
	return fmt.Sprintf("task %d failed: %s (%s)", e.id, e.message, e.code)
}

func isIndexNotFound(err error) bool {
	var taskErr *taskFailedError
	return errors.As(err, &taskErr) && taskErr.code == "index_not_found"
}

func (m *Meilisearch) waitForTask(ctx context.Context, task meiliTask) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.TaskTimeout)
	defer cancel()

	ticker := time.NewTicker(taskPollInterval)
	defer ticker.Stop()

	id := task.id()
	for {
		var current meiliTask
		if err := m.do(ctx, http.MethodGet, "/tasks/"+strconv.FormatInt(id, 10), nil, &current); err != nil {
			return errors.Wrapf(err, "poll task %d", id)
		}

		switch current.Status {
		case "succeeded":
			return nil
		case "failed", "canceled":
			taskErr := &taskFailedError{id: id, message: current.Status}
			if current.Error != nil {
				taskErr.code = current.Error.Code
				taskErr.message = current.Error.Message
			}
			return taskErr
		}

		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "wait for task %d", id)
		case <-ticker.C:
		}
	}
}

func (m *Meilisearch) do(ctx context.Context, method, path string, body, out any) error {
	headers := map[string]string{}
	if m.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + m.cfg.APIKey
	}
	return httputils.MakeAPIRequest(ctx, m.client, method, m.cfg.Host+path, body, headers, out)
}
