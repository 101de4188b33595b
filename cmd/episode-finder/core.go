package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"episode-finder/internal/catalog"
	"episode-finder/internal/config"
	"episode-finder/internal/logger"
	"episode-finder/internal/search"
	"episode-finder/internal/source"
)

// initCore loads and validates configuration and sets up logging.
func initCore() (config.Config, error) {
	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		return config.Config{}, err
	}

	logFile := cfg.Log.File
	if flagLogFile != "" {
		logFile = flagLogFile
	}
	if err := logger.Init(logger.Config{Verbosity: flagLogLevel, Level: cfg.Log.Level, File: logFile}); err != nil {
		return config.Config{}, errors.Wrap(err, "initialise logger")
	}

	if err := cfg.Validate(source.Kinds); err != nil {
		return config.Config{}, errors.Wrap(err, "validate config")
	}
	return cfg, nil
}

func newSource(cfg config.Config) (source.Source, error) {
	return source.New(source.Config{
		Kind:      cfg.Source.Kind,
		Location:  cfg.Source.Location,
		BaseURL:   cfg.Source.BaseURL,
		RateLimit: cfg.Source.RateLimit,
		Timeout:   cfg.SourceTimeout(),
		Workers:   cfg.Source.Workers,
	}, logger.GetLogger("source"))
}

func newSearcher(cfg config.Config) (*search.Searcher, error) {
	log := logger.GetLogger("search")
	if cfg.MockSearch() {
		log.Warn("No search engine configured, serving mock search results")
		return search.NewMockSearcher(log), nil
	}

	meiliCfg := search.MeilisearchConfig{
		Host:    cfg.Search.Host,
		APIKey:  cfg.Search.APIKey,
		Index:   cfg.Search.Index,
		Timeout: cfg.SourceTimeout(),
	}
	engine, err := search.NewMeilisearch(meiliCfg, nil, log)
	if err != nil {
		return nil, errors.Wrap(err, "create meilisearch client")
	}
	return search.NewEngineSearcher(engine, cfg.Search.CacheCapacity, log), nil
}

// newStore builds the first catalog snapshot, reindexing searcher before it
// is published.
func newStore(ctx context.Context, cfg config.Config, src source.Source, searcher *search.Searcher) (*catalog.Store, error) {
	filters, err := catalog.CompileFilters(cfg.Filters)
	if err != nil {
		return nil, errors.Wrap(err, "compile ingestion filters")
	}

	return catalog.NewStore(ctx, src,
		catalog.WithFilters(filters),
		catalog.WithRebuildHook(searcher.RebuildHook()),
		catalog.WithLogger(logger.GetLogger("catalog")),
	)
}

func closeSource(src source.Source, log *logrus.Entry) {
	if err := source.Close(src); err != nil {
		log.WithError(err).Warn("Failed closing episode source")
	}
}
