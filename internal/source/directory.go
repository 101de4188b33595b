package source

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"episode-finder/internal/metadata"
	"episode-finder/internal/models"
)

var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".m4a":  {},
	".aac":  {},
	".flac": {},
	".ogg":  {},
	".opus": {},
	".wav":  {},
}

// Directory builds episodes from the audio files below a directory.
type Directory struct {
	root    string
	baseURL string
	workers int
	log     *logrus.Entry
}

// NewDirectory returns a source for the audio files below cfg.Location.
func NewDirectory(cfg Config, log *logrus.Entry) *Directory {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Directory{root: cfg.Location, baseURL: cfg.BaseURL, workers: workers, log: log}
}

func (d *Directory) Name() string { return d.root }

// WatchPaths returns the root directory.
func (d *Directory) WatchPaths() []string { return []string{d.root} }

// FetchAll reads every audio file. Files carrying a track number keep it as
// their identifier; the rest are numbered after the highest track in order
// of modification time. Unreadable files are logged and skipped.
func (d *Directory) FetchAll(ctx context.Context) ([]models.Episode, error) {
	paths, err := d.audioFiles()
	if err != nil {
		return nil, err
	}

	files := make([]metadata.File, len(paths))
	read := make([]bool, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			file, err := metadata.Read(path, d.root)
			if err != nil {
				d.log.WithError(err).Warnf("Skipping %s", path)
				return nil
			}
			files[i] = file
			read[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kept := files[:0]
	for i, file := range files {
		if read[i] {
			kept = append(kept, file)
		}
	}
	return d.episodes(kept), nil
}

func (d *Directory) audioFiles() ([]string, error) {
	info, err := os.Stat(d.root)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", d.root)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", d.root)
	}

	var (
		mu    sync.Mutex
		paths []string
	)
	err = fastwalk.Walk(nil, d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			d.log.WithError(err).Warnf("Walk error for %s", path)
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		if _, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}

		mu.Lock()
		paths = append(paths, path)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", d.root)
	}

	sort.Strings(paths)
	return paths, nil
}

func (d *Directory) episodes(files []metadata.File) []models.Episode {
	highest := 0
	var untracked []metadata.File
	episodes := make([]models.Episode, 0, len(files))
	for _, file := range files {
		if file.Track > 0 {
			highest = max(highest, file.Track)
			episodes = append(episodes, file.Episode(models.IdentifierFromInt(int64(file.Track)), d.baseURL))
			continue
		}
		untracked = append(untracked, file)
	}

	sort.SliceStable(untracked, func(i, j int) bool {
		return untracked[i].ModifiedAt.Before(untracked[j].ModifiedAt)
	})
	for i, file := range untracked {
		episodes = append(episodes, file.Episode(models.IdentifierFromInt(int64(highest+i+1)), d.baseURL))
	}
	return episodes
}
