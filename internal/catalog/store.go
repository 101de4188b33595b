package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"episode-finder/internal/logger"
	"episode-finder/internal/models"
)

// Fetcher performs a bulk fetch of every episode from upstream.
type Fetcher interface {
	Name() string
	FetchAll(ctx context.Context) ([]models.Episode, error)
}

// RebuildHook runs against a freshly built snapshot before it is published.
// An error keeps the previous snapshot in place.
type RebuildHook func(ctx context.Context, snap *Snapshot) error

// Option configures a Store.
type Option func(*Store)

// WithFilters drops matching episodes before indexing.
func WithFilters(f *Filters) Option {
	return func(s *Store) { s.filters = f }
}

// WithRebuildHook registers a hook run on every rebuild.
func WithRebuildHook(hook RebuildHook) Option {
	return func(s *Store) { s.hooks = append(s.hooks, hook) }
}

// WithLogger sets the store logger.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Store) { s.log = log }
}

// Store publishes catalog snapshots. Readers take the current snapshot and
// keep using it; rebuilds index a new snapshot and swap it in atomically.
type Store struct {
	fetcher Fetcher
	filters *Filters
	hooks   []RebuildHook
	log     *logrus.Entry

	current   atomic.Pointer[Snapshot]
	rebuildMu sync.Mutex

	watcher      *fsnotify.Watcher
	watchRoots   []string
	refreshMu    sync.Mutex
	refreshTimer *time.Timer
	refreshDelay time.Duration

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewStore builds the first snapshot. Any failure here is fatal to startup.
func NewStore(ctx context.Context, fetcher Fetcher, opts ...Option) (*Store, error) {
	s := &Store{
		fetcher: fetcher,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrDefault(s.log, "catalog")

	if err := s.Rebuild(ctx); err != nil {
		return nil, errors.Wrap(err, "initial catalog build")
	}
	return s, nil
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Rebuild fetches every episode, indexes them and publishes the result. On
// failure the previous snapshot stays published.
func (s *Store) Rebuild(ctx context.Context) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	start := time.Now()
	episodes, err := s.fetcher.FetchAll(ctx)
	if err != nil {
		return errors.Wrapf(err, "fetch episodes from %s", s.fetcher.Name())
	}

	kept, err := s.filters.Apply(episodes)
	if err != nil {
		return errors.Wrap(err, "apply ingestion filters")
	}
	if dropped := len(episodes) - len(kept); dropped > 0 {
		s.log.Debugf("Ingestion filters dropped %s episodes", humanize.Comma(int64(dropped)))
	}

	snap := Build(kept)
	for _, hook := range s.hooks {
		if err := hook(ctx, snap); err != nil {
			return errors.Wrap(err, "rebuild hook")
		}
	}

	s.current.Store(snap)
	s.log.Infof("Catalog built from %s: %s episodes, %s tags in %s",
		s.fetcher.Name(),
		humanize.Comma(int64(snap.Len())),
		humanize.Comma(int64(len(snap.byTag))),
		time.Since(start).Truncate(time.Millisecond))
	return nil
}

// Watch rebuilds the catalog after file-system changes below paths, waiting
// for debounce to pass without further events.
func (s *Store) Watch(paths []string, debounce time.Duration) error {
	if len(paths) == 0 {
		return nil
	}
	if s.watcher != nil {
		return errors.New("catalog store is already watching")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	s.watcher = watcher
	s.refreshDelay = debounce

	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return errors.Wrapf(err, "resolve watch path %s", path)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return errors.Wrapf(err, "stat watch path %s", abs)
		}

		s.watchRoots = append(s.watchRoots, abs)
		if info.IsDir() {
			s.addWatchRecursive(abs)
			continue
		}
		// Editors replace files on save, so watch the parent directory.
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return errors.Wrapf(err, "watch %s", filepath.Dir(abs))
		}
	}

	s.wg.Add(1)
	go s.run()

	s.log.Debugf("Watching %s for catalog changes", strings.Join(s.watchRoots, ", "))
	return nil
}

// Close stops the watcher and any pending rebuild.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		s.refreshMu.Lock()
		if s.refreshTimer != nil {
			s.refreshTimer.Stop()
			s.refreshTimer = nil
		}
		s.refreshMu.Unlock()

		if s.watcher != nil {
			s.closeErr = s.watcher.Close()
		}
		s.wg.Wait()
	})
	return s.closeErr
}

func (s *Store) run() {
	defer s.wg.Done()

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.WithError(err).Warn("Catalog watcher error")
		case <-s.done:
			return
		}
	}
}

func (s *Store) handleEvent(event fsnotify.Event) {
	if !s.watched(event.Name) {
		return
	}

	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			s.addWatchRecursive(event.Name)
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		s.scheduleRefresh()
	}
}

func (s *Store) watched(name string) bool {
	name = filepath.Clean(name)
	for _, root := range s.watchRoots {
		if name == root || strings.HasPrefix(name, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (s *Store) scheduleRefresh() {
	select {
	case <-s.done:
		return
	default:
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(s.refreshDelay, func() {
		if err := s.Rebuild(context.Background()); err != nil {
			s.log.WithError(err).Error("Catalog rebuild failed, keeping previous snapshot")
		}

		s.refreshMu.Lock()
		if s.refreshTimer == timer {
			s.refreshTimer = nil
		}
		s.refreshMu.Unlock()
	})

	s.refreshTimer = timer
}

func (s *Store) addWatchRecursive(path string) {
	_ = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			s.log.WithError(err).Warnf("Walk error for %s", p)
			return nil
		}

		if d.IsDir() {
			if err := s.watcher.Add(p); err != nil {
				s.log.WithError(err).Warnf("Watcher add failure for %s", p)
			}
		}
		return nil
	})
}
