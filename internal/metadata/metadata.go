package metadata

import (
	"errors"
	"io"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"

	"episode-finder/internal/models"
)

// File is the metadata read from one audio file.
type File struct {
	RelativePath    string
	Filename        string
	Title           string
	Description     string
	Artist          string
	Album           string
	Genres          []string
	Track           int
	DurationSeconds *float64
	FilesizeBytes   int64
	ModifiedAt      time.Time
}

// Read collects tag and duration metadata for the audio file at path.
// Missing or unreadable tags fall back to the file name.
func Read(path string, root string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}

	relative, err := filepath.Rel(root, path)
	if err != nil {
		relative = filepath.Base(path)
	}
	relative = filepath.ToSlash(relative)

	file := readTags(path)
	file.RelativePath = relative
	file.Filename = filepath.Base(path)
	file.FilesizeBytes = info.Size()
	file.ModifiedAt = info.ModTime().UTC().Round(time.Second)
	if file.Title == "" {
		file.Title = strings.TrimSuffix(file.Filename, filepath.Ext(path))
	}

	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		dur, err := computeMP3Duration(path)
		if err == nil && dur > 0 {
			file.DurationSeconds = &dur
		}
	}

	return file, nil
}

// Episode converts the file into a catalog episode. Genres and the album
// become tags; the audio link is baseURL joined with the relative path.
func (f File) Episode(number models.Identifier, baseURL string) models.Episode {
	tags := make([]models.Tag, 0, len(f.Genres)+1)
	for _, genre := range f.Genres {
		tags = append(tags, models.Tag(genre))
	}
	if f.Album != "" {
		tags = append(tags, models.Tag(f.Album))
	}

	length := 0
	if f.DurationSeconds != nil {
		length = int(math.Round(*f.DurationSeconds))
	}

	return models.NewEpisode(number, f.Title, f.Description, audioLink(baseURL, f.RelativePath),
		length, f.ModifiedAt.Unix(), tags...)
}

func audioLink(baseURL, relative string) string {
	segments := strings.Split(relative, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	escaped := strings.Join(segments, "/")
	if baseURL == "" {
		return escaped
	}
	return strings.TrimRight(baseURL, "/") + "/" + escaped
}

func readTags(path string) File {
	f, err := os.Open(path)
	if err != nil {
		return File{}
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return File{}
	}

	track, _ := meta.Track()
	return File{
		Title:       strings.TrimSpace(meta.Title()),
		Description: strings.TrimSpace(meta.Comment()),
		Artist:      strings.TrimSpace(meta.Artist()),
		Album:       strings.TrimSpace(meta.Album()),
		Genres:      splitGenres(meta.Genre()),
		Track:       track,
	}
}

// splitGenres splits multi-valued genre frames such as "History; Politics".
func splitGenres(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';' || r == '/'
	})

	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if field = strings.TrimSpace(field); field != "" {
			out = append(out, field)
		}
	}
	return out
}

func computeMP3Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := mp3.NewDecoder(f)
	var frame mp3.Frame
	var skipped int
	var total float64

	for {
		err := decoder.Decode(&frame, &skipped)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration().Seconds()
	}

	return total, nil
}
