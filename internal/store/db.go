// Package store persists generated toolpaths in a local SQLite database so
// earlier runs can be listed and inspected.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/zjrosen/millflow/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is an open history database.
type DB struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// Open opens (creating if needed) the database at path and applies pending
// migrations. An existing database is copied to path+".bak" before it is
// migrated.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	_, statErr := os.Stat(path)
	existed := statErr == nil

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(wal)"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		log.ErrorErr(log.CatStore, "failed to open database", err, "path", path)
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		log.ErrorErr(log.CatStore, "failed to ping database", err, "path", path)
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{conn: conn, path: path, now: time.Now}
	if err := db.migrateUp(existed); err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.Debug(log.CatStore, "database ready", "path", path)
	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Connection returns the underlying *sql.DB.
func (db *DB) Connection() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Toolpaths returns the toolpath repository backed by this database.
func (db *DB) Toolpaths() Repository {
	return &toolpathRepository{conn: db.conn, now: db.now}
}

// Version returns the applied schema version. Zero means no migration ran.
func (db *DB) Version() (uint, error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if dirty {
		return v, fmt.Errorf("schema version %d is dirty", v)
	}
	return v, nil
}

func (db *DB) migrateUp(existed bool) error {
	// The migrate instance is not closed: closing it closes db.conn.
	m, err := db.newMigrate()
	if err != nil {
		return err
	}

	if existed {
		pending, err := db.pending(m)
		if err != nil {
			return err
		}
		if pending {
			if err := db.backup(); err != nil {
				return err
			}
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.ErrorErr(log.CatStore, "migration failed", err, "path", db.path)
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// pending reports whether the embedded migrations go past the applied
// version.
func (db *DB) pending(m *migrate.Migrate) (bool, error) {
	current, _, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read schema version: %w", err)
	}
	latest, err := latestMigration()
	if err != nil {
		return false, err
	}
	return latest > current, nil
}

func latestMigration() (uint, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("load migrations: %w", err)
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("load migrations: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, os.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("load migrations: %w", err)
		}
		v = next
	}
}

// backup writes a consistent copy of the database next to it.
func (db *DB) backup() error {
	target := db.path + ".bak"
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove old backup: %w", err)
	}
	if _, err := db.conn.Exec("VACUUM INTO ?", target); err != nil {
		log.ErrorErr(log.CatStore, "pre-migration backup failed", err, "path", target)
		return fmt.Errorf("backup database: %w", err)
	}
	log.Info(log.CatStore, "database backed up before migration", "path", target)
	return nil
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.conn, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateLogger routes migrate output to the store log category.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	log.Debug(log.CatStore, fmt.Sprintf("migrate: "+format, v...))
}

func (migrateLogger) Verbose() bool { return false }
