package logsink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS request_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    recorded_at INTEGER NOT NULL,
    source_host TEXT,
    endpoint TEXT,
    original_model TEXT,
    resolved_model TEXT,
    upstream_model TEXT,
    route TEXT,
    provider TEXT,
    key_fingerprint TEXT,
    attempts INTEGER NOT NULL DEFAULT 0,
    status INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    request_bytes INTEGER NOT NULL DEFAULT 0,
    response_bytes INTEGER NOT NULL DEFAULT 0,
    streaming BOOLEAN NOT NULL DEFAULT 0,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_request_logs_recorded_at ON request_logs(recorded_at);
CREATE INDEX IF NOT EXISTS idx_request_logs_request_id ON request_logs(request_id);
`

const insertEntry = `
INSERT INTO request_logs (
    request_id, recorded_at, source_host, endpoint,
    original_model, resolved_model, upstream_model, route,
    provider, key_fingerprint, attempts, status, duration_ms,
    request_bytes, response_bytes, streaming, error
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteConfig configures an SQLiteSink.
type SQLiteConfig struct {
	// Path is the database file. Its directory is created if missing.
	Path string

	// BufferSize bounds the number of entries waiting to be written.
	// Default: 1000
	BufferSize int

	// BusyTimeout is how long to wait for the database lock.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// WriteTimeout bounds a single insert.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// SQLiteSink persists entries to SQLite from a single writer goroutine.
type SQLiteSink struct {
	db      *sql.DB
	insert  *sql.Stmt
	config  SQLiteConfig
	logger  *slog.Logger
	entries chan Entry
	dropped atomic.Int64
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewSQLiteSink opens (or creates) the database and starts the writer.
func NewSQLiteSink(cfg SQLiteConfig) (*SQLiteSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	stmt, err := db.PrepareContext(ctx, insertEntry)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}

	s := &SQLiteSink{
		db:      db,
		insert:  stmt,
		config:  cfg,
		logger:  slog.Default().With("component", "logsink.sqlite"),
		entries: make(chan Entry, cfg.BufferSize),
	}

	s.wg.Add(1)
	go s.worker()

	s.logger.Info("request log sink initialized",
		"path", cfg.Path,
		"buffer_size", cfg.BufferSize,
	)
	return s, nil
}

// Record enqueues an entry. When the buffer is full or the sink is closed
// the entry is dropped and counted.
func (s *SQLiteSink) Record(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.entries <- e:
	default:
		if s.dropped.Add(1)%100 == 1 {
			s.logger.Warn("request log buffer full, dropping entries",
				"dropped_total", s.dropped.Load(),
			)
		}
	}
}

// Dropped returns the number of entries discarded so far.
func (s *SQLiteSink) Dropped() int64 {
	return s.dropped.Load()
}

// Ping verifies the database is reachable.
func (s *SQLiteSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecentEntries returns up to limit entries, newest first.
func (s *SQLiteSink) RecentEntries(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT request_id, recorded_at, source_host, endpoint,
       original_model, resolved_model, upstream_model, route,
       provider, key_fingerprint, attempts, status, duration_ms,
       request_bytes, response_bytes, streaming, error
FROM request_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query request logs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                                                  Entry
			recordedAt, durationMS                             int64
			sourceHost, endpoint, original, resolved, upstream sql.NullString
			route, provider, fingerprint, errText              sql.NullString
		)
		if err := rows.Scan(&e.RequestID, &recordedAt, &sourceHost, &endpoint,
			&original, &resolved, &upstream, &route,
			&provider, &fingerprint, &e.Attempts, &e.Status, &durationMS,
			&e.RequestBytes, &e.ResponseBytes, &e.Streaming, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan request log: %w", err)
		}
		e.Timestamp = time.UnixMilli(recordedAt)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.SourceHost = sourceHost.String
		e.Endpoint = endpoint.String
		e.OriginalModel = original.String
		e.ResolvedModel = resolved.String
		e.UpstreamModel = upstream.String
		e.Route = route.String
		e.Provider = provider.String
		e.KeyFingerprint = fingerprint.String
		e.Error = errText.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close stops accepting entries, writes everything already queued and
// closes the database.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.entries)
	s.mu.Unlock()

	s.logger.Info("draining request log buffer", "pending_count", len(s.entries))
	s.wg.Wait()

	if err := s.insert.Close(); err != nil {
		s.logger.Warn("failed to close insert statement", "error", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (s *SQLiteSink) worker() {
	defer s.wg.Done()
	for e := range s.entries {
		s.write(e)
	}
}

func (s *SQLiteSink) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
	defer cancel()

	_, err := s.insert.ExecContext(ctx,
		e.RequestID, e.Timestamp.UnixMilli(), nullString(e.SourceHost), nullString(e.Endpoint),
		nullString(e.OriginalModel), nullString(e.ResolvedModel), nullString(e.UpstreamModel), nullString(e.Route),
		nullString(e.Provider), nullString(e.KeyFingerprint), e.Attempts, e.Status, e.Duration.Milliseconds(),
		e.RequestBytes, e.ResponseBytes, e.Streaming, nullString(e.Error),
	)
	if err != nil {
		s.logger.Error("failed to write request log",
			"request_id", e.RequestID,
			"error", err,
		)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
