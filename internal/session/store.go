package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"darkroom/internal/config"
	"darkroom/internal/media"
)

// Store manages session and catalog persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := applySchema(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the connection for stores sharing this database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

const sessionColumns = `id, status, source_paths, archive_root, resumed, snapshot_json,
    files_total, files_processed, bytes_total, bytes_processed, duplicates, errors,
    last_error, created_at, updated_at, completed_at`

// Create inserts a new pending session for a batch.
func (s *Store) Create(ctx context.Context, sourcePaths []string, archiveRoot string) (*Session, error) {
	if len(sourcePaths) == 0 {
		return nil, errors.New("at least one source path is required")
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:          uuid.NewString(),
		Status:      StatusPending,
		SourcePaths: append([]string{}, sourcePaths...),
		ArchiveRoot: archiveRoot,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	paths, err := json.Marshal(sess.SourcePaths)
	if err != nil {
		return nil, fmt.Errorf("marshal source paths: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO import_sessions (
            id, status, source_paths, archive_root, resumed, created_at, updated_at
        ) VALUES (?, ?, ?, ?, 0, ?, ?)`,
		sess.ID,
		sess.Status,
		string(paths),
		archiveRoot,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// Get fetches a session by identifier, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM import_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// Update persists changes to an existing session.
func (s *Store) Update(ctx context.Context, sess *Session) error {
	if sess == nil {
		return errors.New("session is nil")
	}
	sess.UpdatedAt = time.Now().UTC()

	paths, err := json.Marshal(sess.SourcePaths)
	if err != nil {
		return fmt.Errorf("marshal source paths: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`UPDATE import_sessions
         SET status = ?, source_paths = ?, archive_root = ?, resumed = ?, snapshot_json = ?,
             files_total = ?, files_processed = ?, bytes_total = ?, bytes_processed = ?,
             duplicates = ?, errors = ?, last_error = ?, updated_at = ?, completed_at = ?
         WHERE id = ?`,
		sess.Status,
		string(paths),
		sess.ArchiveRoot,
		boolToInt(sess.Resumed),
		nullableString(sess.SnapshotJSON),
		sess.FilesTotal,
		sess.FilesProcessed,
		sess.BytesTotal,
		sess.BytesProcessed,
		sess.Duplicates,
		sess.Errors,
		nullableString(sess.LastError),
		sess.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(sess.CompletedAt),
		sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// List returns sessions newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM import_sessions`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SetSnapshot serializes and stores the step snapshot on the session.
func (sess *Session) SetSnapshot(snapshot Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	sess.SnapshotJSON = string(data)
	return nil
}

// GetSnapshot deserializes the stored step snapshot.
func (sess *Session) GetSnapshot() (Snapshot, error) {
	var snapshot Snapshot
	if sess.SnapshotJSON == "" {
		return snapshot, nil
	}
	if err := json.Unmarshal([]byte(sess.SnapshotJSON), &snapshot); err != nil {
		return snapshot, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snapshot, nil
}

// InsertCatalogFile writes a validated file into the catalog and returns
// the record id. The hash uniqueness constraint makes re-finalizing a
// resumed session idempotent: the existing record id is returned.
func (s *Store) InsertCatalogFile(ctx context.Context, sessionID string, file media.ValidatedFile) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO catalog_files (session_id, filename, source_path, archive_path, hash, size, media_type, imported_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(hash) DO NOTHING`,
		sessionID,
		file.Filename,
		file.SourcePath,
		file.ArchivePath,
		file.Hash,
		file.Size,
		string(file.Type),
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert catalog file: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return res.LastInsertId()
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `SELECT id FROM catalog_files WHERE hash = ?`, file.Hash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup catalog file: %w", err)
	}
	return id, nil
}

// FindCatalogHash reports whether a content hash is already archived and
// where. Used for cross-batch duplicate detection.
func (s *Store) FindCatalogHash(ctx context.Context, hash string) (string, bool, error) {
	var archivePath string
	err := s.db.QueryRowContext(ctx, `SELECT archive_path FROM catalog_files WHERE hash = ?`, hash).Scan(&archivePath)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find catalog hash: %w", err)
	}
	return archivePath, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess        Session
		paths       string
		resumed     int
		snapshot    sql.NullString
		lastError   sql.NullString
		createdAt   string
		updatedAt   string
		completedAt sql.NullString
	)
	err := row.Scan(
		&sess.ID,
		&sess.Status,
		&paths,
		&sess.ArchiveRoot,
		&resumed,
		&snapshot,
		&sess.FilesTotal,
		&sess.FilesProcessed,
		&sess.BytesTotal,
		&sess.BytesProcessed,
		&sess.Duplicates,
		&sess.Errors,
		&lastError,
		&createdAt,
		&updatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(paths), &sess.SourcePaths); err != nil {
		return nil, fmt.Errorf("unmarshal source paths: %w", err)
	}
	sess.Resumed = resumed != 0
	sess.SnapshotJSON = snapshot.String
	sess.LastError = lastError.String

	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sess.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		ts, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		sess.CompletedAt = &ts
	}
	return &sess, nil
}

func parseTime(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return ts, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}
