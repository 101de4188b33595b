package config

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const envPrefix = "EPISODE_FINDER_"

const (
	defaultListenAddr        = "127.0.0.1:8080"
	defaultRefreshDebounceMS = 500
	defaultSourceKind        = "mock"
	defaultSourceTimeoutSecs = 30
	defaultSearchIndex       = "podcasts"
	defaultCacheCapacity     = 256
	defaultFeedTitle         = "Episode Finder"
	defaultFeedDescription   = "Podcast episodes served by episode-finder."
	defaultFeedLanguage      = "en"
)

// Config is the complete service configuration.
type Config struct {
	ListenAddr        string       `yaml:"listenAddr"`
	RefreshDebounceMS int          `yaml:"refreshDebounceMs"`
	Watch             bool         `yaml:"watch"`
	Log               LogConfig    `yaml:"log"`
	Source            SourceConfig `yaml:"source"`
	Search            SearchConfig `yaml:"search"`
	Feed              FeedMetadata `yaml:"feed"`
	// AdminTokenFile enables the admin endpoints when set.
	AdminTokenFile string `yaml:"adminTokenFile"`
	// Filters are expressions excluding matching episodes at ingestion.
	Filters []string `yaml:"filters"`
}

// LogConfig configures logging output. An empty level defers to the -v
// flag count.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// SourceConfig selects where episodes come from.
type SourceConfig struct {
	Kind           string `yaml:"kind"`
	Location       string `yaml:"location"`
	BaseURL        string `yaml:"baseUrl"`
	RateLimit      int    `yaml:"rateLimit"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	Workers        int    `yaml:"workers"`
}

// SearchConfig locates the full-text engine. An empty host selects mock
// search.
type SearchConfig struct {
	Host          string `yaml:"host"`
	APIKey        string `yaml:"apiKey"`
	Index         string `yaml:"index"`
	CacheCapacity int    `yaml:"cacheCapacity"`
}

// FeedMetadata represents the static metadata used to render RSS feeds.
type FeedMetadata struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Link        string `yaml:"link"`
	Language    string `yaml:"language"`
	Author      string `yaml:"author"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ListenAddr:        defaultListenAddr,
		RefreshDebounceMS: defaultRefreshDebounceMS,
		Watch:             true,
		Source: SourceConfig{
			Kind:           defaultSourceKind,
			TimeoutSeconds: defaultSourceTimeoutSecs,
		},
		Search: SearchConfig{
			Index:         defaultSearchIndex,
			CacheCapacity: defaultCacheCapacity,
		},
		Feed: FeedMetadata{
			Title:       defaultFeedTitle,
			Description: defaultFeedDescription,
			Language:    defaultFeedLanguage,
		},
	}
}

// Load applies defaults, then the YAML file at path (or
// EPISODE_FINDER_CONFIG when path is empty), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) == "" {
		path = env("CONFIG")
	}
	if path != "" {
		resolved, err := resolvePath(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "resolve config path %s", path)
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "decode config %s", resolved)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	setInt(&cfg.RefreshDebounceMS, "REFRESH_DEBOUNCE_MS")
	setBool(&cfg.Watch, "WATCH")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.File, "LOG_FILE")

	setString(&cfg.Source.Kind, "SOURCE")
	setString(&cfg.Source.Location, "SOURCE_LOCATION")
	setString(&cfg.Source.BaseURL, "SOURCE_BASE_URL")
	setInt(&cfg.Source.RateLimit, "SOURCE_RATE_LIMIT")
	setInt(&cfg.Source.TimeoutSeconds, "SOURCE_TIMEOUT_SECONDS")
	setInt(&cfg.Source.Workers, "SOURCE_WORKERS")

	setString(&cfg.Search.Host, "MEILISEARCH_HOST")
	setString(&cfg.Search.APIKey, "MEILISEARCH_API_KEY")
	setString(&cfg.Search.Index, "MEILISEARCH_INDEX")
	setInt(&cfg.Search.CacheCapacity, "SEARCH_CACHE_CAPACITY")

	setString(&cfg.Feed.Title, "FEED_TITLE")
	setString(&cfg.Feed.Description, "FEED_DESCRIPTION")
	setString(&cfg.Feed.Link, "FEED_LINK")
	setString(&cfg.Feed.Language, "FEED_LANGUAGE")
	setString(&cfg.Feed.Author, "FEED_AUTHOR")

	setString(&cfg.AdminTokenFile, "ADMIN_TOKEN_FILE")

	if value := env("FILTERS"); value != "" {
		cfg.Filters = strings.Split(value, ";")
	}
}

// RefreshDebounce returns the duration to wait before rebuilding the
// catalog after file-system change events.
func (c Config) RefreshDebounce() time.Duration {
	if c.RefreshDebounceMS < 0 {
		return time.Duration(defaultRefreshDebounceMS) * time.Millisecond
	}
	return time.Duration(c.RefreshDebounceMS) * time.Millisecond
}

// SourceTimeout returns the upstream request timeout.
func (c Config) SourceTimeout() time.Duration {
	if c.Source.TimeoutSeconds <= 0 {
		return defaultSourceTimeoutSecs * time.Second
	}
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// MockSearch reports whether no search engine is configured.
func (c Config) MockSearch() bool {
	return strings.TrimSpace(c.Search.Host) == ""
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate(knownSources []string) error {
	if err := ValidateListenAddr(c.ListenAddr); err != nil {
		return err
	}

	kind := strings.ToLower(strings.TrimSpace(c.Source.Kind))
	known := false
	for _, k := range knownSources {
		if k == kind {
			known = true
			break
		}
	}
	if !known {
		return errors.Errorf("unknown source kind %q, expected one of %s", c.Source.Kind, strings.Join(knownSources, ", "))
	}
	if kind != "mock" && strings.TrimSpace(c.Source.Location) == "" {
		return errors.Errorf("source %s requires a location", kind)
	}

	if c.Search.CacheCapacity < 0 {
		return errors.New("search cache capacity must not be negative")
	}
	if c.Source.RateLimit < 0 {
		return errors.New("source rate limit must not be negative")
	}
	return nil
}

// ValidateListenAddr ensures the listen address is a host:port pair with a
// numeric port.
func ValidateListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return errors.Wrapf(err, "invalid listen address %q", addr)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return errors.Errorf("invalid listen port %q", port)
	}
	return nil
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + name))
}

func setString(target *string, name string) {
	if value := env(name); value != "" {
		*target = value
	}
}

func setInt(target *int, name string) {
	if value := env(name); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			*target = n
		}
	}
}

func setBool(target *bool, name string) {
	if value := env(name); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			*target = b
		}
	}
}

func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	return filepath.Abs(path)
}
