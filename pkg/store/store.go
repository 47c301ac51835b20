// Package store provides the SQLite-backed metadata and dedup store. One
// store serves the whole process: post records, the content-hash dedup
// table, and favorites.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"redditcollector/pkg/errors"
	"redditcollector/pkg/logger"
)

// PostRecord is one persisted row joining post metadata with its download
// outcome. ItemID is the post id, suffixed with the gallery ordinal for
// gallery members ("abc123" or "abc123_2").
type PostRecord struct {
	ItemID       string
	PostID       string
	Subreddit    string
	Author       string
	Title        string
	URL          string
	MediaURL     string
	MediaType    string
	Score        int
	CreatedUTC   float64
	Permalink    string
	SourceKind   string
	SourceName   string
	Flair        string
	DownloadedAt time.Time
	LocalPath    string
	ContentHash  string
}

// Stats summarizes the collection.
type Stats struct {
	TotalPosts int
	Downloaded int
	Favorites  int
	BySource   map[string]int
	ByType     map[string]int
}

// Store wraps the SQLite connection.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// Open opens or creates the database at path and runs migrations. Failure
// here is fatal to the run; callers should not start network activity first.
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.TypeStoreUnavailable,
			fmt.Sprintf("failed to open database at %s", path), err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrap(errors.TypeStoreUnavailable, "failed to configure database", err)
		}
	}

	s := &Store{db: db, logger: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.TypeStoreUnavailable, "failed to migrate database", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		item_id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL,
		subreddit TEXT NOT NULL,
		author TEXT,
		title TEXT,
		url TEXT NOT NULL,
		media_url TEXT,
		media_type TEXT,
		score INTEGER DEFAULT 0,
		created_utc REAL,
		permalink TEXT,
		source_kind TEXT,
		source_name TEXT,
		flair TEXT,
		downloaded_at TIMESTAMP,
		local_path TEXT,
		content_hash TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_posts_subreddit ON posts(subreddit);
	CREATE INDEX IF NOT EXISTS idx_posts_hash ON posts(content_hash);
	CREATE INDEX IF NOT EXISTS idx_posts_downloaded ON posts(downloaded_at);
	CREATE TABLE IF NOT EXISTS dedup (
		content_hash TEXT PRIMARY KEY,
		local_path TEXT NOT NULL,
		first_seen TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS favorites (
		post_id TEXT PRIMARY KEY,
		added_at TIMESTAMP NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ItemDownloaded reports whether a completed download is already recorded
// for this item id. Used as the pre-download short-circuit.
func (s *Store) ItemDownloaded(itemID string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM posts WHERE item_id = ? AND downloaded_at IS NOT NULL", itemID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(errors.TypeStoreUnavailable, "failed to query post", err)
	}
	return true, nil
}

// AddPost inserts or replaces the record for one downloaded item.
func (s *Store) AddPost(rec *PostRecord) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO posts
		(item_id, post_id, subreddit, author, title, url, media_url, media_type,
		 score, created_utc, permalink, source_kind, source_name, flair,
		 downloaded_at, local_path, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ItemID, rec.PostID, rec.Subreddit, rec.Author, rec.Title, rec.URL,
		rec.MediaURL, rec.MediaType, rec.Score, rec.CreatedUTC, rec.Permalink,
		rec.SourceKind, rec.SourceName, rec.Flair, rec.DownloadedAt,
		rec.LocalPath, rec.ContentHash)
	if err != nil {
		return errors.Wrap(errors.TypeStoreUnavailable, "failed to persist post record", err)
	}
	return nil
}

// CommitHash conditionally claims a content hash. If the hash is new the
// record is inserted and inserted=true is returned; if another download
// already claimed it, the existing file's path is returned instead. The
// unique constraint on content_hash is the serialization point, so exactly
// one of any number of concurrent callers wins.
func (s *Store) CommitHash(hash, localPath string) (existingPath string, inserted bool, err error) {
	result, err := s.db.Exec(`
		INSERT INTO dedup (content_hash, local_path, first_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(content_hash) DO NOTHING`,
		hash, localPath, time.Now().UTC())
	if err != nil {
		return "", false, errors.Wrap(errors.TypeStoreUnavailable, "failed to commit hash", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return "", false, errors.Wrap(errors.TypeStoreUnavailable, "failed to commit hash", err)
	}
	if rows == 1 {
		return "", true, nil
	}

	err = s.db.QueryRow(
		"SELECT local_path FROM dedup WHERE content_hash = ?", hash,
	).Scan(&existingPath)
	if err != nil {
		return "", false, errors.Wrap(errors.TypeStoreUnavailable, "failed to look up hash", err)
	}
	return existingPath, false, nil
}

// DeleteHash releases a claimed hash. Compensation for a file write that
// failed after CommitHash succeeded.
func (s *Store) DeleteHash(hash string) error {
	if _, err := s.db.Exec("DELETE FROM dedup WHERE content_hash = ?", hash); err != nil {
		return errors.Wrap(errors.TypeStoreUnavailable, "failed to delete hash", err)
	}
	return nil
}

// LookupHash returns the stored path for a hash, if any.
func (s *Store) LookupHash(hash string) (string, bool, error) {
	var path string
	err := s.db.QueryRow(
		"SELECT local_path FROM dedup WHERE content_hash = ?", hash,
	).Scan(&path)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(errors.TypeStoreUnavailable, "failed to look up hash", err)
	}
	return path, true, nil
}

// AddFavorite marks a post as favorited. Idempotent.
func (s *Store) AddFavorite(postID string) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO favorites (post_id, added_at) VALUES (?, ?)",
		postID, time.Now().UTC())
	if err != nil {
		return errors.Wrap(errors.TypeStoreUnavailable, "failed to add favorite", err)
	}
	return nil
}

// RemoveFavorite unmarks a post.
func (s *Store) RemoveFavorite(postID string) error {
	if _, err := s.db.Exec("DELETE FROM favorites WHERE post_id = ?", postID); err != nil {
		return errors.Wrap(errors.TypeStoreUnavailable, "failed to remove favorite", err)
	}
	return nil
}

// IsFavorite reports whether a post has been favorited.
func (s *Store) IsFavorite(postID string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM favorites WHERE post_id = ?", postID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(errors.TypeStoreUnavailable, "failed to query favorite", err)
	}
	return true, nil
}

// Favorites returns all favorited post ids, newest first.
func (s *Store) Favorites() ([]string, error) {
	rows, err := s.db.Query("SELECT post_id FROM favorites ORDER BY added_at DESC")
	if err != nil {
		return nil, errors.Wrap(errors.TypeStoreUnavailable, "failed to list favorites", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(errors.TypeStoreUnavailable, "failed to list favorites", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats aggregates collection statistics for reporting.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{
		BySource: make(map[string]int),
		ByType:   make(map[string]int),
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM posts").Scan(&stats.TotalPosts); err != nil {
		return nil, errors.Wrap(errors.TypeStoreUnavailable, "failed to query stats", err)
	}
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM posts WHERE downloaded_at IS NOT NULL",
	).Scan(&stats.Downloaded); err != nil {
		return nil, errors.Wrap(errors.TypeStoreUnavailable, "failed to query stats", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM favorites").Scan(&stats.Favorites); err != nil {
		return nil, errors.Wrap(errors.TypeStoreUnavailable, "failed to query stats", err)
	}

	rows, err := s.db.Query(`
		SELECT source_kind, source_name, COUNT(*)
		FROM posts
		WHERE downloaded_at IS NOT NULL AND source_name != ''
		GROUP BY source_kind, source_name`)
	if err != nil {
		return nil, errors.Wrap(errors.TypeStoreUnavailable, "failed to query stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, name string
		var count int
		if err := rows.Scan(&kind, &name, &count); err != nil {
			return nil, errors.Wrap(errors.TypeStoreUnavailable, "failed to query stats", err)
		}
		label := "r/" + name
		if kind == "user" {
			label = "u/" + name
		}
		stats.BySource[label] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.TypeStoreUnavailable, "failed to query stats", err)
	}

	typeRows, err := s.db.Query(`
		SELECT media_type, COUNT(*)
		FROM posts
		WHERE downloaded_at IS NOT NULL AND media_type != ''
		GROUP BY media_type`)
	if err != nil {
		return nil, errors.Wrap(errors.TypeStoreUnavailable, "failed to query stats", err)
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var mediaType string
		var count int
		if err := typeRows.Scan(&mediaType, &count); err != nil {
			return nil, errors.Wrap(errors.TypeStoreUnavailable, "failed to query stats", err)
		}
		stats.ByType[mediaType] = count
	}
	return stats, typeRows.Err()
}

// RecentDownloads returns the most recently downloaded records.
func (s *Store) RecentDownloads(limit int) ([]PostRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT item_id, post_id, subreddit, author, title, url, media_url,
		       media_type, score, created_utc, permalink, source_kind,
		       source_name, flair, downloaded_at, local_path, content_hash
		FROM posts
		WHERE downloaded_at IS NOT NULL AND local_path != ''
		ORDER BY downloaded_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(errors.TypeStoreUnavailable, "failed to query recent downloads", err)
	}
	defer rows.Close()

	var records []PostRecord
	for rows.Next() {
		var rec PostRecord
		if err := rows.Scan(&rec.ItemID, &rec.PostID, &rec.Subreddit, &rec.Author,
			&rec.Title, &rec.URL, &rec.MediaURL, &rec.MediaType, &rec.Score,
			&rec.CreatedUTC, &rec.Permalink, &rec.SourceKind, &rec.SourceName,
			&rec.Flair, &rec.DownloadedAt, &rec.LocalPath, &rec.ContentHash); err != nil {
			return nil, errors.Wrap(errors.TypeStoreUnavailable, "failed to scan record", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
