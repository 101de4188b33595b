// Package source fetches the full episode list from an upstream system.
// Every source performs one bulk fetch per catalog rebuild.
package source

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"episode-finder/internal/logger"
	"episode-finder/internal/models"
)

// ErrUnknownSource is returned for an unrecognised source kind.
var ErrUnknownSource = errors.New("unknown episode source")

// Source fetches every episode from upstream.
type Source interface {
	Name() string
	FetchAll(ctx context.Context) ([]models.Episode, error)
}

// Watchable sources live on the local file system and can be rebuilt when
// their files change.
type Watchable interface {
	WatchPaths() []string
}

const (
	KindAPI       = "api"
	KindRSS       = "rss"
	KindSQLite    = "sqlite"
	KindDirectory = "directory"
	KindFile      = "file"
	KindMock      = "mock"
)

// Kinds lists every supported source kind.
var Kinds = []string{KindAPI, KindRSS, KindSQLite, KindDirectory, KindFile, KindMock}

// Config selects and parameterises a source.
type Config struct {
	Kind     string
	Location string
	// BaseURL prefixes audio links for directory sources.
	BaseURL string
	// RateLimit caps upstream requests per second; zero is unlimited.
	RateLimit int
	Timeout   time.Duration
	Workers   int
}

// New returns the source described by cfg.
func New(cfg Config, log *logrus.Entry) (Source, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	if kind != KindMock && strings.TrimSpace(cfg.Location) == "" {
		return nil, errors.Errorf("%s source requires a location", kind)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	log = logger.OrDefault(log, "source")
	switch kind {
	case KindAPI:
		return NewAPI(cfg, log), nil
	case KindRSS:
		return NewRSS(cfg, log), nil
	case KindSQLite:
		return OpenSQLite(cfg.Location, log)
	case KindDirectory:
		return NewDirectory(cfg, log), nil
	case KindFile:
		return NewFile(cfg.Location, log), nil
	case KindMock:
		return Mock{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownSource, "%q", cfg.Kind)
	}
}

// Close releases resources held by src, if any.
func Close(src Source) error {
	if closer, ok := src.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
