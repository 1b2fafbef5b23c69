package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/emojirooms/internal/domain"
	"github.com/ashureev/emojirooms/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeRetries   = 3
	writeBaseDelay = 100 * time.Millisecond
)

// SQLiteStore implements Repository and PairStore using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serialises writes to keep SQLITE_BUSY rare
	now     func() time.Time
}

// NewSQLite creates a new SQLite-backed store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS actor_state (
		kind TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (kind, actor_id, key)
	);

	CREATE TABLE IF NOT EXISTS pair_records (
		room_id TEXT PRIMARY KEY,
		record_json TEXT NOT NULL,
		paired_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pair_records_expires ON pair_records(expires_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the value stored for (kind, actorID, key), or nil, nil.
func (s *SQLiteStore) Get(ctx context.Context, kind, actorID, key string) ([]byte, error) {
	query := `SELECT value FROM actor_state WHERE kind = ? AND actor_id = ? AND key = ?`

	var value []byte
	err := s.db.QueryRowContext(ctx, query, kind, actorID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s/%s: %w", kind, actorID, key, err)
	}
	return value, nil
}

// Put creates or replaces the value stored for (kind, actorID, key).
func (s *SQLiteStore) Put(ctx context.Context, kind, actorID, key string, value []byte) error {
	query := `
	INSERT INTO actor_state (kind, actor_id, key, value, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(kind, actor_id, key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	err := s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, kind, actorID, key, value, s.now().UnixMilli())
		return err
	})
	if err != nil {
		return fmt.Errorf("put %s/%s/%s: %w", kind, actorID, key, err)
	}
	return nil
}

// ListActors returns the ids of every actor of kind with stored state.
func (s *SQLiteStore) ListActors(ctx context.Context, kind string) ([]string, error) {
	query := `SELECT DISTINCT actor_id FROM actor_state WHERE kind = ? ORDER BY actor_id`

	rows, err := s.db.QueryContext(ctx, query, kind)
	if err != nil {
		return nil, fmt.Errorf("query actors: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("Failed to close actor rows", "error", closeErr)
		}
	}()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan actor row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actors: %w", err)
	}
	return ids, nil
}

// RecordPair stores rec until ttl elapses.
func (s *SQLiteStore) RecordPair(ctx context.Context, rec domain.PairRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal pair record: %w", err)
	}

	query := `
	INSERT INTO pair_records (room_id, record_json, paired_at, expires_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(room_id) DO UPDATE SET
		record_json = excluded.record_json,
		paired_at = excluded.paired_at,
		expires_at = excluded.expires_at`

	expiresAt := s.now().Add(ttl).UnixMilli()
	err = s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, rec.RoomID, string(data), rec.PairedAtMillis, expiresAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("record pair %s: %w", rec.RoomID, err)
	}
	return nil
}

// GetPairRecord returns the unexpired record for roomID, or nil, nil.
func (s *SQLiteStore) GetPairRecord(ctx context.Context, roomID string) (*domain.PairRecord, error) {
	query := `SELECT record_json FROM pair_records WHERE room_id = ? AND expires_at > ?`

	var data string
	err := s.db.QueryRowContext(ctx, query, roomID, s.now().UnixMilli()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pair record %s: %w", roomID, err)
	}

	var rec domain.PairRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal pair record: %w", err)
	}
	return &rec, nil
}

// DeleteExpiredPairRecords removes pair records whose ttl has elapsed and
// returns how many were deleted.
func (s *SQLiteStore) DeleteExpiredPairRecords(ctx context.Context) (int64, error) {
	var deleted int64
	err := s.write(ctx, func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM pair_records WHERE expires_at <= ?`, s.now().UnixMilli())
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired pair records: %w", err)
	}
	return deleted, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (s *SQLiteStore) write(ctx context.Context, fn func() error) error {
	return shared.RetryOnConflict(ctx, writeRetries, writeBaseDelay, func() error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return fn()
	})
}
