package source

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"episode-finder/internal/models"
)

// File reads episodes from a YAML (or JSON) document holding a list of
// episodes.
type File struct {
	path string
	log  *logrus.Entry
}

type fileEpisode struct {
	Number          string   `yaml:"podcastNumber"`
	Title           string   `yaml:"title"`
	Description     string   `yaml:"description"`
	AudioLink       string   `yaml:"audioLink"`
	LengthInSeconds int      `yaml:"lengthInSeconds"`
	CreateTime      int64    `yaml:"createTime"`
	Tags            []string `yaml:"tags"`
}

// NewFile returns a source reading path.
func NewFile(path string, log *logrus.Entry) *File {
	return &File{path: path, log: log}
}

func (f *File) Name() string { return f.path }

// WatchPaths returns the episode file.
func (f *File) WatchPaths() []string { return []string{f.path} }

// FetchAll decodes the file. Any malformed entry fails the whole fetch.
func (f *File) FetchAll(context.Context) ([]models.Episode, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", f.path)
	}

	var entries []fileEpisode
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrapf(err, "decode %s", f.path)
	}

	episodes := make([]models.Episode, 0, len(entries))
	for i, entry := range entries {
		id, err := models.ParseIdentifier(entry.Number)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d of %s", i, f.path)
		}

		tags := make([]models.Tag, len(entry.Tags))
		for j, tag := range entry.Tags {
			tags[j] = models.Tag(tag)
		}
		episodes = append(episodes, models.NewEpisode(id, entry.Title, entry.Description, entry.AudioLink,
			entry.LengthInSeconds, entry.CreateTime, tags...))
	}
	return episodes, nil
}
