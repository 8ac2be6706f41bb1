package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// IndexEntry is one stored key/value annotated with its owning page
type IndexEntry struct {
	Key   string
	Page  string
	Value json.RawMessage
}

// KV is a value waiting to be written under Key
type KV struct {
	Key   string
	Value any
}

// IndexStore persists derived records partitioned by page.
// Implementations: SQLiteIndex
type IndexStore interface {
	// BatchSet writes all entries for page atomically.
	BatchSet(page string, entries []KV) error

	// DeletePrefix removes the page's keys starting with prefix.
	DeletePrefix(page, prefix string) error

	// ReplacePage deletes the page's keys under each prefix and writes
	// entries in the same transaction.
	ReplacePage(page string, prefixes []string, entries []KV) error

	// QueryPrefix returns every entry, across pages, whose key starts with prefix.
	QueryPrefix(prefix string) ([]IndexEntry, error)
}

// SQLiteIndex is an IndexStore backed by a single SQLite table
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex opens (and creates if needed) the index database at dbPath
func NewSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// One writer at a time: the sync worker and user commands share the handle.
	db.SetMaxOpenConns(1)

	store := &SQLiteIndex{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteIndex) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS entries (
			page TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (page, key)
		);

		CREATE INDEX IF NOT EXISTS idx_entries_key ON entries(key);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

func (s *SQLiteIndex) BatchSet(page string, entries []KV) error {
	if len(entries) == 0 {
		return nil
	}
	return s.ReplacePage(page, nil, entries)
}

const deletePrefixSQL = `
	DELETE FROM entries
	WHERE page = ? AND substr(key, 1, length(?)) = ?
`

func (s *SQLiteIndex) DeletePrefix(page, prefix string) error {
	_, err := s.db.Exec(deletePrefixSQL, page, prefix, prefix)
	return err
}

// ReplacePage swaps the page's records under prefixes for entries. Readers
// see either the old records or the new ones, and a failed write keeps the old.
func (s *SQLiteIndex) ReplacePage(page string, prefixes []string, entries []KV) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, prefix := range prefixes {
		if _, err := tx.Exec(deletePrefixSQL, page, prefix, prefix); err != nil {
			return fmt.Errorf("clear %s%s: %w", page, prefix, err)
		}
	}

	if len(entries) > 0 {
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO entries (page, key, value) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			value, err := json.Marshal(entry.Value)
			if err != nil {
				return fmt.Errorf("encode %s: %w", entry.Key, err)
			}
			if _, err := stmt.Exec(page, entry.Key, string(value)); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func (s *SQLiteIndex) QueryPrefix(prefix string) ([]IndexEntry, error) {
	rows, err := s.db.Query(`
		SELECT page, key, value
		FROM entries
		WHERE substr(key, 1, length(?)) = ?
		ORDER BY page, key
	`, prefix, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []IndexEntry
	for rows.Next() {
		var entry IndexEntry
		var value string

		if err := rows.Scan(&entry.Page, &entry.Key, &value); err != nil {
			return nil, err
		}

		entry.Value = json.RawMessage(value)
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Pages returns every page that currently has entries
func (s *SQLiteIndex) Pages() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT page FROM entries ORDER BY page`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []string
	for rows.Next() {
		var page string
		if err := rows.Scan(&page); err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}

	return pages, rows.Err()
}
