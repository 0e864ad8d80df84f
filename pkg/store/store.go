// Package store keeps the identity cache and export history in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/symmetricalboy/bsky-to-gem/pkg/identity"
)

// DBFileName is the database file inside the data directory
const DBFileName = "bsky-to-gem.db"

// Store is the SQLite-backed identity cache and export history
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Export is one finished export run
type Export struct {
	ID           int64
	RunID        string
	Handle       string
	DID          string
	Endpoint     string
	FallbackUsed bool
	Posts        int
	Tokens       int
	File         string
	TrimmedFile  string
	CreatedAt    time.Time
}

// Open opens or creates the database at path and applies the schema
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetIdentity returns the cached identity for handle, or nil when it is
// missing or older than maxAge. A zero maxAge never expires entries.
func (s *Store) GetIdentity(ctx context.Context, handle string, maxAge time.Duration) (*identity.Identity, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}

	var (
		did        string
		pds        sql.NullString
		resolvedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT did, pds_endpoint, resolved_at
		FROM identities
		WHERE handle = ?
	`, handle).Scan(&did, &pds, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query identity: %w", err)
	}

	ts, err := parseTime(resolvedAt)
	if err != nil {
		return nil, fmt.Errorf("parse resolved_at: %w", err)
	}
	if maxAge > 0 && s.now().Sub(ts) > maxAge {
		return nil, nil
	}

	return &identity.Identity{
		DID:        did,
		Handle:     handle,
		PDSURL:     pds.String,
		ResolvedAt: ts,
		Method:     identity.MethodCache,
	}, nil
}

// PutIdentity inserts or replaces the cached identity for id.Handle
func (s *Store) PutIdentity(ctx context.Context, id *identity.Identity) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if id == nil || strings.TrimSpace(id.Handle) == "" || strings.TrimSpace(id.DID) == "" {
		return errors.New("handle and did are required")
	}

	resolvedAt := id.ResolvedAt
	if resolvedAt.IsZero() {
		resolvedAt = s.now()
	}

	var pds sql.NullString
	if id.PDSURL != "" {
		pds = sql.NullString{String: id.PDSURL, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (handle, did, pds_endpoint, resolved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET
			did = excluded.did,
			pds_endpoint = excluded.pds_endpoint,
			resolved_at = excluded.resolved_at
	`, id.Handle, id.DID, pds, formatTime(resolvedAt))
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}

// PurgeIdentity removes the cached identity for handle
func (s *Store) PurgeIdentity(ctx context.Context, handle string) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM identities WHERE handle = ?", handle); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

// RecordExport appends an export to the history and returns its id
func (s *Store) RecordExport(ctx context.Context, e Export) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if strings.TrimSpace(e.Handle) == "" || strings.TrimSpace(e.File) == "" {
		return 0, errors.New("handle and file are required")
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	var tokens sql.NullInt64
	if e.Tokens > 0 {
		tokens = sql.NullInt64{Int64: int64(e.Tokens), Valid: true}
	}
	var trimmed sql.NullString
	if e.TrimmedFile != "" {
		trimmed = sql.NullString{String: e.TrimmedFile, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO exports (
			run_id, handle, did, endpoint, fallback_used, posts, tokens, file, trimmed_file, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.RunID,
		e.Handle,
		e.DID,
		e.Endpoint,
		boolToInt(e.FallbackUsed),
		e.Posts,
		tokens,
		e.File,
		trimmed,
		formatTime(createdAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert export: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read export id: %w", err)
	}
	return id, nil
}

// ListExports returns the most recent exports first, optionally for one
// handle. A non-positive limit returns every row.
func (s *Store) ListExports(ctx context.Context, handle string, limit int) ([]Export, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}

	query := `
		SELECT id, run_id, handle, did, endpoint, fallback_used, posts, tokens, file, trimmed_file, created_at
		FROM exports
	`
	var args []interface{}
	if handle != "" {
		query += " WHERE handle = ?"
		args = append(args, handle)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	defer rows.Close()

	var exports []Export
	for rows.Next() {
		var (
			e         Export
			fallback  int
			tokens    sql.NullInt64
			trimmed   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Handle, &e.DID, &e.Endpoint, &fallback, &e.Posts, &tokens, &e.File, &trimmed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		e.FallbackUsed = fallback != 0
		e.Tokens = int(tokens.Int64)
		e.TrimmedFile = trimmed.String
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		exports = append(exports, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exports: %w", err)
	}
	return exports, nil
}

// DefaultPath returns the database path inside the per-OS data directory
func DefaultPath() (string, error) {
	dir, err := DataDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DBFileName), nil
}

// DataDirectory returns the appropriate data directory for the current OS
func DataDirectory() (string, error) {
	const app = "bsky-to-gem"

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", app), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		return filepath.Join(appData, app), nil
	default:
		// XDG_DATA_HOME or ~/.local/share on Linux and other Unixes
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			return filepath.Join(xdgDataHome, app), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", app), nil
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
