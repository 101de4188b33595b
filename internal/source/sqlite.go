package source

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"episode-finder/internal/models"
)

const createEpisodesTable = `CREATE TABLE IF NOT EXISTS episodes (
	number         TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	audio_link     TEXT NOT NULL,
	length_seconds INTEGER NOT NULL DEFAULT 0,
	create_time    INTEGER NOT NULL DEFAULT 0,
	tags           TEXT NOT NULL DEFAULT '[]'
)`

// SQLite reads episodes from the episodes table of a SQLite database.
type SQLite struct {
	path string
	db   *sql.DB
	log  *logrus.Entry
}

// OpenSQLite opens the database at path, creating the table if needed.
func OpenSQLite(path string, log *logrus.Entry) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}

	if _, err := db.Exec(createEpisodesTable); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "create episodes table in %s", path)
	}
	return &SQLite{path: path, db: db, log: log}, nil
}

func (s *SQLite) Name() string { return "sqlite:" + s.path }

// WatchPaths returns the database file.
func (s *SQLite) WatchPaths() []string { return []string{s.path} }

// FetchAll reads every row of the episodes table.
func (s *SQLite) FetchAll(ctx context.Context) ([]models.Episode, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT number, title, description, audio_link, length_seconds, create_time, tags FROM episodes")
	if err != nil {
		return nil, errors.Wrap(err, "query episodes")
	}
	defer rows.Close()

	var episodes []models.Episode
	for rows.Next() {
		var (
			number, title, description, audio, tagsJSON string
			length                                      int
			created                                     int64
		)
		if err := rows.Scan(&number, &title, &description, &audio, &length, &created, &tagsJSON); err != nil {
			return nil, errors.Wrap(err, "scan episode")
		}

		id, err := models.ParseIdentifier(number)
		if err != nil {
			s.log.WithError(err).Warnf("Skipping row with number %q", number)
			continue
		}

		var tags []models.Tag
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			return nil, errors.Wrapf(err, "decode tags of episode %s", id)
		}
		episodes = append(episodes, models.NewEpisode(id, title, description, audio, length, created, tags...))
	}
	return episodes, errors.Wrap(rows.Err(), "iterate episodes")
}

// Save inserts or replaces episodes in a single transaction.
func (s *SQLite) Save(ctx context.Context, episodes []models.Episode) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	statement, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO episodes VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return errors.Wrap(err, "prepare insert")
	}
	defer statement.Close()

	for _, ep := range episodes {
		tags, err := json.Marshal(models.NormalizeTags(ep.Tags))
		if err != nil {
			return errors.Wrap(err, "encode tags")
		}
		if _, err := statement.ExecContext(ctx, ep.Number.Key(), ep.Title, ep.Description, ep.AudioLink,
			ep.LengthInSeconds, ep.CreateTime, string(tags)); err != nil {
			return errors.Wrapf(err, "insert episode %s", ep.Number)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
