// Package metadata records per-file play history and star events in an
// embedded SQLite database, behind a background worker so queries never
// touch the playback path.
package metadata

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"bookplayer/debug"
)

// ModelVersion is pinned in the version table.
const ModelVersion = "1.0.0"

var (
	// ErrFileNotFound is returned when an event targets a path with no
	// file_stats row.
	ErrFileNotFound = errors.New("file not found in file_stats")
	// ErrVersionMismatch is returned when the stored schema version
	// differs from ModelVersion.
	ErrVersionMismatch = errors.New("model version mismatch")
	// ErrDatabaseUnavailable marks a store that failed to open; callers
	// degrade to zero counts.
	ErrDatabaseUnavailable = errors.New("metadata database unavailable")
)

// FileStats is the stored part of a file's record. Aggregates are never
// stored; they are computed from the event tables.
type FileStats struct {
	RelativePath string
	MD5          string
	Notes        string
}

// FileStatsWithTotals is a file record with its computed aggregates.
type FileStatsWithTotals struct {
	ID int64
	FileStats
	LatestPlayTime time.Time
	PlayCount      uint32
	StarCount      uint32
}

// DB is an open metadata store. It is not safe for concurrent use; the
// worker serializes all access on one goroutine.
type DB struct {
	path string
	conn *sql.DB
}

// SQLite DATE columns work best with this layout for date functions.
const sqliteDateLayout = "2006-01-02 15:04:05"

func toSQLiteDate(t time.Time) string {
	return t.UTC().Format(sqliteDateLayout)
}

func fromSQLiteDate(s string) (time.Time, error) {
	return time.ParseInLocation(sqliteDateLayout, s, time.UTC)
}

// Open opens or creates the store at path and applies schema and
// pragmas. Pragma failures are tolerated (in-memory databases reject
// some of them).
func Open(path string) (*DB, error) {
	if _, err := os.Stat(path); err == nil {
		debug.Infof("metadata", "opening existing database at %s", path)
	} else {
		debug.Infof("metadata", "creating new database at %s", path)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// pragmas are per connection; keep the pool at one
	conn.SetMaxOpenConns(1)

	db := &DB{path: path, conn: conn}
	db.optimize()
	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, err
	}

	if n, err := db.CountFiles(); err == nil {
		debug.Infof("metadata", "database contains %d file entries", n)
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Close closes the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

func (db *DB) optimize() {
	// WAL keeps reads and writes from blocking each other; NORMAL
	// avoids long synchronous flushes in the playback-adjacent path
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -2000",
		"PRAGMA temp_store = FILE",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.conn.Exec(p); err != nil {
			debug.Warnf("metadata", "pragma %q failed: %v", p, err)
		}
	}
}

func (db *DB) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS version (version TEXT)`,
		`CREATE TABLE IF NOT EXISTS file_stats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			relative_path TEXT UNIQUE,
			md5 TEXT,
			notes TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS play_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_id INTEGER,
			at DATE,
			FOREIGN KEY(file_id) REFERENCES file_stats(id)
		)`,
		`CREATE TABLE IF NOT EXISTS star_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_id INTEGER,
			at DATE,
			FOREIGN KEY(file_id) REFERENCES file_stats(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_file_stats_path ON file_stats(relative_path)`,
		`CREATE INDEX IF NOT EXISTS idx_play_events_file ON play_events(file_id)`,
		`CREATE INDEX IF NOT EXISTS idx_play_events_at ON play_events(at)`,
		`CREATE INDEX IF NOT EXISTS idx_play_events_file_at ON play_events(file_id, at)`,
		`CREATE INDEX IF NOT EXISTS idx_star_events_file ON star_events(file_id)`,
		`CREATE INDEX IF NOT EXISTS idx_star_events_at ON star_events(at)`,
		`CREATE INDEX IF NOT EXISTS idx_star_events_file_at ON star_events(file_id, at)`,
	}
	for _, s := range stmts {
		if _, err := db.conn.Exec(s); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	_, err := db.conn.Exec(
		`INSERT INTO version (version) SELECT ? WHERE NOT EXISTS (SELECT 1 FROM version)`,
		ModelVersion,
	)
	return err
}

// CheckVersion verifies the stored schema version.
func (db *DB) CheckVersion() error {
	var v string
	if err := db.conn.QueryRow(`SELECT version FROM version`).Scan(&v); err != nil {
		return err
	}
	if v != ModelVersion {
		return fmt.Errorf("stored %q, want %q: %w", v, ModelVersion, ErrVersionMismatch)
	}
	return nil
}

const upsertFileStatsSQL = `INSERT INTO file_stats (relative_path, md5, notes)
	VALUES (?, ?, ?)
	ON CONFLICT(relative_path) DO UPDATE SET
	md5 = excluded.md5,
	notes = excluded.notes`

// UpsertFileStats inserts or updates a file record. The conflict clause
// updates in place: a delete-and-reinsert would change the id and
// orphan the event rows pointing at it.
func (db *DB) UpsertFileStats(fs FileStats) error {
	_, err := db.conn.Exec(upsertFileStatsSQL, fs.RelativePath, fs.MD5, fs.Notes)
	if err != nil {
		return fmt.Errorf("upserting stats for %q: %w", fs.RelativePath, err)
	}
	return nil
}

// batchChunk caps per-chunk work so large imports do not hold big
// statement buffers.
const batchChunk = 100

// UpsertFileStatsBatch upserts many records in one transaction with a
// reused prepared statement.
func (db *DB) UpsertFileStatsBatch(list []FileStats) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(upsertFileStatsSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for start := 0; start < len(list); start += batchChunk {
		end := start + batchChunk
		if end > len(list) {
			end = len(list)
		}
		for _, fs := range list[start:end] {
			if _, err := stmt.Exec(fs.RelativePath, fs.MD5, fs.Notes); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// AddPlayEvent records one play of a file already present in
// file_stats. The subquery lookup and insert run as one statement; zero
// affected rows means the file is unknown.
func (db *DB) AddPlayEvent(relativePath string, at time.Time) error {
	return db.addEvent("play_events", relativePath, at)
}

// AddStarEvent records one star hit for a file.
func (db *DB) AddStarEvent(relativePath string, at time.Time) error {
	return db.addEvent("star_events", relativePath, at)
}

func (db *DB) addEvent(table, relativePath string, at time.Time) error {
	res, err := db.conn.Exec(
		`INSERT INTO `+table+` (file_id, at)
		 SELECT id, ? FROM file_stats WHERE relative_path = ?`,
		toSQLiteDate(at), relativePath,
	)
	if err != nil {
		return fmt.Errorf("inserting into %s for %q: %w", table, relativePath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%q: %w", relativePath, ErrFileNotFound)
	}
	return nil
}

// AddPlayEventsBatch records many plays of one file in a single
// transaction, chunked to cap transient memory.
func (db *DB) AddPlayEventsBatch(relativePath string, times []time.Time) error {
	var fileID int64
	err := db.conn.QueryRow(
		`SELECT id FROM file_stats WHERE relative_path = ?`, relativePath,
	).Scan(&fileID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%q: %w", relativePath, ErrFileNotFound)
	}
	if err != nil {
		return err
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO play_events (file_id, at) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for start := 0; start < len(times); start += batchChunk {
		end := start + batchChunk
		if end > len(times) {
			end = len(times)
		}
		for _, t := range times[start:end] {
			if _, err := stmt.Exec(fileID, toSQLiteDate(t)); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// QueryFileStats returns a file's record with computed aggregates, or
// nil when the path has never been seen (not an error). The scalar
// subqueries ride the composite (file_id, at) indexes.
func (db *DB) QueryFileStats(relativePath string) (*FileStatsWithTotals, error) {
	row := db.conn.QueryRow(
		`SELECT id, relative_path, md5, notes,
			(SELECT MAX(at) FROM play_events WHERE file_id = file_stats.id),
			(SELECT COUNT(*) FROM play_events WHERE file_id = file_stats.id),
			(SELECT COUNT(*) FROM star_events WHERE file_id = file_stats.id)
		 FROM file_stats WHERE relative_path = ?`,
		relativePath,
	)

	var out FileStatsWithTotals
	var latest sql.NullString
	var plays, stars int64
	err := row.Scan(&out.ID, &out.RelativePath, &out.MD5, &out.Notes, &latest, &plays, &stars)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying stats for %q: %w", relativePath, err)
	}
	if latest.Valid {
		t, err := fromSQLiteDate(latest.String)
		if err != nil {
			return nil, fmt.Errorf("parsing latest play time %q: %w", latest.String, err)
		}
		out.LatestPlayTime = t
	} else {
		out.LatestPlayTime = time.Unix(0, 0).UTC()
	}
	out.PlayCount = uint32(plays)
	out.StarCount = uint32(stars)
	return &out, nil
}

// CountFiles returns the number of file_stats rows.
func (db *DB) CountFiles() (int64, error) {
	var n int64
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM file_stats`).Scan(&n)
	return n, err
}

// CountPlayEvents returns the number of play_events rows.
func (db *DB) CountPlayEvents() (int64, error) {
	var n int64
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM play_events`).Scan(&n)
	return n, err
}

// CountStarEvents returns the number of star_events rows.
func (db *DB) CountStarEvents() (int64, error) {
	var n int64
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM star_events`).Scan(&n)
	return n, err
}

// Checkpoint forces a WAL checkpoint so the main file holds everything
// written so far. Tests run it before close-and-reopen durability
// checks.
func (db *DB) Checkpoint() error {
	_, err := db.conn.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
	return err
}
