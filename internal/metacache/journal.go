package metacache

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/metasync/internal/db"
)

// JournalFileName is the journal database file below the cache root.
const JournalFileName = "journal.db"

const journalSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    key TEXT PRIMARY KEY,
    handle TEXT NOT NULL,
    size INTEGER NOT NULL,
    downloaded_at TEXT NOT NULL -- RFC3339
);

CREATE INDEX IF NOT EXISTS idx_cache_entries_handle ON cache_entries(handle);
`

// JournalEntry records which remote file a cache file was downloaded from.
type JournalEntry struct {
	Key          CacheKey
	Handle       string
	Size         int64
	DownloadedAt time.Time
}

type journalRow struct {
	Key          string `db:"key"`
	Handle       string `db:"handle"`
	Size         int64  `db:"size"`
	DownloadedAt string `db:"downloaded_at"`
}

// Journal remembers the handle behind each cached key, which the key alone
// cannot tell. It is informational: the cache directory drives every sync.
type Journal struct {
	db *sqlx.DB
	mu sync.Mutex
}

// OpenJournal opens or creates the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	database, err := db.NewSqliteDB(db.WithPath(path))
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	j, err := NewJournal(database)
	if err != nil {
		database.Close()
		return nil, err
	}
	return j, nil
}

// NewJournal uses an open database, creating the schema if needed.
func NewJournal(database *sqlx.DB) (*Journal, error) {
	if _, err := database.Exec(journalSchema); err != nil {
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	return &Journal{db: database}, nil
}

func (j *Journal) Close() error {
	slog.Debug("journal closed")
	return j.db.Close()
}

// Record inserts or replaces the entry for e.Key.
func (j *Journal) Record(e JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.NamedExec(
		`INSERT OR REPLACE INTO cache_entries (key, handle, size, downloaded_at)
		 VALUES (:key, :handle, :size, :downloaded_at)`,
		journalRow{
			Key:          string(e.Key),
			Handle:       e.Handle,
			Size:         e.Size,
			DownloadedAt: e.DownloadedAt.UTC().Format(time.RFC3339),
		},
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", e.Key, err)
	}
	return nil
}

func (j *Journal) Remove(key CacheKey) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.db.Exec("DELETE FROM cache_entries WHERE key = ?", string(key)); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Get returns the entry for key, or nil if there is none.
func (j *Journal) Get(key CacheKey) (*JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var rows []journalRow
	if err := j.db.Select(&rows, "SELECT key, handle, size, downloaded_at FROM cache_entries WHERE key = ?", string(key)); err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	e, err := rows[0].entry()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns all entries ordered by handle.
func (j *Journal) List() ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var rows []journalRow
	if err := j.db.Select(&rows, "SELECT key, handle, size, downloaded_at FROM cache_entries ORDER BY handle"); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	entries := make([]JournalEntry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r journalRow) entry() (JournalEntry, error) {
	at, err := time.Parse(time.RFC3339, r.DownloadedAt)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("parse downloaded_at of %s: %w", r.Key, err)
	}
	return JournalEntry{
		Key:          CacheKey(r.Key),
		Handle:       r.Handle,
		Size:         r.Size,
		DownloadedAt: at,
	}, nil
}
