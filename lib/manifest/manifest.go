// Package manifest keeps a sqlite record of every file a dump run has
// materialized, so runs can be summarized and audited after the fact.
package manifest

import (
	"context"
	"database/sql"
	"time"

	_ "embed"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

type Entry struct {
	Path         string
	Url          string
	Bytes        int64
	DownloadedAt time.Time
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(Schema)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Note(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO file (path, url, bytes, downloaded_at) VALUES (?, ?, ?, ?)`,
		e.Path, e.Url, e.Bytes, e.DownloadedAt.Unix(),
	)
	return err
}

func (s *Store) Seen(ctx context.Context, path string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file WHERE path = ?`, path)
	var count int64
	err := row.Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) All(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT path, url, bytes, downloaded_at FROM file ORDER BY path`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var unix int64
		err = rows.Scan(&e.Path, &e.Url, &e.Bytes, &unix)
		if err != nil {
			return nil, err
		}
		e.DownloadedAt = time.Unix(unix, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
