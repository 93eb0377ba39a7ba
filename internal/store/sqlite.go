package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sweeney/light-scheduler/internal/logic"
)

// SQLite is a Store backed by a SQLite database file.
// WAL journaling with synchronous=FULL makes a completed write durable
// across power loss.
type SQLite struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenSQLite opens (creating if needed) the database at path and initializes the schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", ErrStorage, err)
	}
	// One connection: access is already serialized through s.mu.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initialize schema: %w", ErrStorage, err)
	}

	return &SQLite{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schedule (
			tag TEXT PRIMARY KEY,
			hour INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	return err
}

// GetHour returns the hour stored under tag.
func (s *SQLite) GetHour(ctx context.Context, tag Tag) (logic.Hour, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw int64
	err := s.db.QueryRowContext(ctx, `SELECT hour FROM schedule WHERE tag = ?`, string(tag)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return logic.NoHour, nil
	}
	if err != nil {
		return logic.NoHour, fmt.Errorf("%w: get %s: %w", ErrStorage, tag, err)
	}

	h, err := logic.NewHour(int(raw))
	if err != nil {
		return logic.NoHour, fmt.Errorf("%w: corrupt value for %s: %w", ErrStorage, tag, err)
	}
	return h, nil
}

// SetHour stores h under tag, or deletes the key if h is unset.
func (s *SQLite) SetHour(ctx context.Context, tag Tag, h logic.Hour) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := setHour(ctx, s.db, tag, h); err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrStorage, tag, err)
	}
	return nil
}

// SetHours stores every entry inside one transaction.
func (s *SQLite) SetHours(ctx context.Context, hours map[Tag]logic.Hour) error {
	if len(hours) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrStorage, err)
	}
	for _, tag := range sortedTags(hours) {
		if err := setHour(ctx, tx, tag, hours[tag]); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: set %s: %w", ErrStorage, tag, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrStorage, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setHour(ctx context.Context, db execer, tag Tag, h logic.Hour) error {
	hh, ok := h.Get()
	if !ok {
		_, err := db.ExecContext(ctx, `DELETE FROM schedule WHERE tag = ?`, string(tag))
		return err
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO schedule (tag, hour, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(tag) DO UPDATE SET
			hour = excluded.hour,
			updated_at = excluded.updated_at
	`, string(tag), hh, time.Now().UTC().Unix())
	return err
}
