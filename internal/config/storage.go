package config

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO required

	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
)

// blobStore is the durable per-section persistence backend (§4.C's
// "each section is persisted as an independent blob under a stable
// identifier"). A SQLite transaction boundary stands in for the
// stage-then-commit sequence: a crash before Commit leaves the
// previously committed row untouched.
type blobStore struct {
	db *sql.DB
}

// openBlobStore opens (or creates) the section blob database at
// dir/config.db with WAL mode for crash-safe commits.
func openBlobStore(dir string) (*blobStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	dsn := filepath.Join(dir, "config.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open config db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping config db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS sections (
		name       TEXT PRIMARY KEY,
		blob       TEXT NOT NULL,
		version    INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate config db: %w", err)
	}
	return &blobStore{db: db}, nil
}

// openBlobStoreInMemory opens an in-process SQLite database, used by
// tests and by boot configurations that opt out of flash persistence.
func openBlobStoreInMemory() (*blobStore, error) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS sections (
		name       TEXT PRIMARY KEY,
		blob       TEXT NOT NULL,
		version    INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &blobStore{db: db}, nil
}

func (b *blobStore) Close() error { return b.db.Close() }

// read returns the persisted blob for name, or ok=false if never written.
func (b *blobStore) read(name string) (blob string, version int, ok bool, err error) {
	row := b.db.QueryRow(`SELECT blob, version FROM sections WHERE name = ?`, name)
	if err = row.Scan(&blob, &version); err != nil {
		if err == sql.ErrNoRows {
			return "", 0, false, nil
		}
		return "", 0, false, domain.Wrap(domain.KindHardwareError, "config", "read section "+name, err)
	}
	return blob, version, true, nil
}

// write atomically replaces the persisted blob for name. The transaction
// commit is the atomic boundary: a crash before Commit recovers the
// previously committed row (§4.C, §8 "Config atomicity").
func (b *blobStore) write(name, blob string, version int, updatedAtMs uint64) error {
	tx, err := b.db.Begin()
	if err != nil {
		return domain.Wrap(domain.KindHardwareError, "config", "begin write "+name, err)
	}
	if _, err := tx.Exec(`INSERT INTO sections (name, blob, version, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET blob = excluded.blob, version = excluded.version, updated_at = excluded.updated_at`,
		name, blob, version, updatedAtMs); err != nil {
		tx.Rollback()
		return domain.Wrap(domain.KindHardwareError, "config", "write section "+name, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Wrap(domain.KindHardwareError, "config", "commit section "+name, err)
	}
	return nil
}
