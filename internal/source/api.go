package source

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"episode-finder/internal/httputils"
	"episode-finder/internal/models"
)

// API reads episodes from an upstream JSON endpoint returning
// {"podcasts": [...]}.
type API struct {
	url    string
	client *http.Client
	log    *logrus.Entry
}

type apiResponse struct {
	Podcasts []apiPodcast `json:"podcasts"`
}

type apiURL struct {
	URLType string  `json:"urlType"`
	Value   *string `json:"value"`
}

type apiPodcast struct {
	Date        string       `json:"date"`
	Description string       `json:"description"`
	Title       string       `json:"title"`
	URLs        []apiURL     `json:"urls"`
	Length      int          `json:"length"`
	Num         *json.Number `json:"num"`
	Tags        []string     `json:"tags"`
}

// NewAPI returns a rate limited, retrying client for cfg.Location.
func NewAPI(cfg Config, log *logrus.Entry) *API {
	return &API{
		url:    cfg.Location,
		client: httputils.NewRetryableHttpClient(cfg.Timeout, httputils.NewLimiter(cfg.RateLimit), log),
		log:    log,
	}
}

func (a *API) Name() string { return a.url }

// FetchAll downloads every episode. Records without a number, an audio link
// or a readable date are skipped.
func (a *API) FetchAll(ctx context.Context) ([]models.Episode, error) {
	var resp apiResponse
	if err := httputils.MakeAPIRequest(ctx, a.client, http.MethodGet, a.url, nil, nil, &resp); err != nil {
		return nil, errors.Wrap(err, "fetch podcasts")
	}

	episodes := make([]models.Episode, 0, len(resp.Podcasts))
	for _, p := range resp.Podcasts {
		ep, err := p.episode()
		if err != nil {
			a.log.WithError(err).Warnf("Skipping podcast %q", p.Title)
			continue
		}
		episodes = append(episodes, ep)
	}
	return episodes, nil
}

func (p apiPodcast) episode() (models.Episode, error) {
	if p.Num == nil {
		return models.Episode{}, errors.New("episode has no number")
	}
	number, err := models.ParseIdentifier(p.Num.String())
	if err != nil {
		return models.Episode{}, err
	}

	var audio string
	for _, u := range p.URLs {
		if u.URLType == "audio" && u.Value != nil {
			audio = *u.Value
		}
	}
	if audio == "" {
		return models.Episode{}, errors.Errorf("episode %s has no audio url", number)
	}

	published, err := parseRFC2822(p.Date)
	if err != nil {
		return models.Episode{}, err
	}

	tags := make([]models.Tag, len(p.Tags))
	for i, tag := range p.Tags {
		tags[i] = models.Tag(strings.TrimSpace(tag))
	}
	return models.NewEpisode(number, p.Title, p.Description, audio, p.Length, published.Unix(), tags...), nil
}

var rfc2822Layouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC3339,
}

func parseRFC2822(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range rfc2822Layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognised date %q", value)
}
