package source

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"episode-finder/internal/httputils"
	"episode-finder/internal/models"
)

// RSS reads episodes from a podcast feed, either remote (http or https) or a
// local file.
type RSS struct {
	location string
	client   *http.Client
	log      *logrus.Entry
}

// NewRSS returns a feed source for cfg.Location.
func NewRSS(cfg Config, log *logrus.Entry) *RSS {
	return &RSS{
		location: cfg.Location,
		client:   httputils.NewRetryableHttpClient(cfg.Timeout, httputils.NewLimiter(cfg.RateLimit), log),
		log:      log,
	}
}

func (r *RSS) Name() string { return r.location }

func (r *RSS) remote() bool {
	return strings.HasPrefix(r.location, "http://") || strings.HasPrefix(r.location, "https://")
}

// WatchPaths returns the feed file for local feeds.
func (r *RSS) WatchPaths() []string {
	if r.remote() {
		return nil
	}
	return []string{r.location}
}

// FetchAll parses the feed. Items without an enclosure are skipped.
func (r *RSS) FetchAll(ctx context.Context) ([]models.Episode, error) {
	body, err := r.read(ctx)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "parse feed %s", r.location)
	}

	episodes := make([]models.Episode, 0, len(feed.Items))
	for i, item := range feed.Items {
		if len(item.Enclosures) == 0 || item.Enclosures[0].URL == "" {
			r.log.Debugf("Skipping feed item %q without enclosure", item.Title)
			continue
		}

		// Feeds list newest first, so positions count down.
		number := models.IdentifierFromInt(int64(len(feed.Items) - i))
		if value := itunesValue(item, "episode"); value != "" {
			if id, err := models.ParseIdentifier(value); err == nil {
				number = id
			}
		}

		var created int64
		if item.PublishedParsed != nil {
			created = item.PublishedParsed.Unix()
		}

		length := 0
		if item.ITunesExt != nil {
			length = parseDuration(item.ITunesExt.Duration)
		}

		description := item.Description
		if description == "" {
			description = item.Content
		}

		tags := make([]models.Tag, 0, len(item.Categories))
		for _, category := range item.Categories {
			tags = append(tags, models.Tag(strings.TrimSpace(category)))
		}

		episodes = append(episodes, models.NewEpisode(number, strings.TrimSpace(item.Title), description,
			item.Enclosures[0].URL, length, created, tags...))
	}
	return episodes, nil
}

func (r *RSS) read(ctx context.Context) ([]byte, error) {
	if !r.remote() {
		data, err := os.ReadFile(r.location)
		return data, errors.Wrapf(err, "read feed %s", r.location)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.location, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch feed %s", r.location)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &httputils.StatusError{Method: http.MethodGet, URL: r.location, StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	return data, errors.Wrapf(err, "read feed %s", r.location)
}

func itunesValue(item *gofeed.Item, name string) string {
	values := item.Extensions["itunes"][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

// parseDuration reads itunes:duration values: seconds, MM:SS or HH:MM:SS.
// Unreadable values yield zero.
func parseDuration(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	total := 0
	parts := strings.Split(value, ":")
	if len(parts) > 3 {
		return 0
	}
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}
