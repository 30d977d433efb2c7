package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gosqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteSchema mirrors the Postgres migration. SQLite deployments are a
// single process owning a single file, so a bootstrap statement is enough.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    hash TEXT UNIQUE NOT NULL,
    filename TEXT NOT NULL,
    filepath TEXT NOT NULL,
    filesize INTEGER NOT NULL,
    mimetype TEXT,
    uploaded_at INTEGER NOT NULL,
    download_count INTEGER NOT NULL DEFAULT 0
)`

// SQLiteStore implements Store on a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database file at path and
// bootstraps the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; serialize at the pool level so
	// concurrent inserts queue instead of returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func isUniqueViolation(err error) bool {
	var serr *gosqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		serr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func (s *SQLiteStore) Insert(ctx context.Context, f *StoredFile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (hash, filename, filepath, filesize, mimetype, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.Handle, f.OrigName, f.StoragePath, f.SizeBytes, f.MimeType, f.UploadedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateHandle
		}
		return fmt.Errorf("insert file metadata: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetByHandle(ctx context.Context, handle string) (*StoredFile, error) {
	var (
		f          StoredFile
		uploadedMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT hash, filename, filepath, filesize, mimetype, uploaded_at, download_count
		 FROM files WHERE hash = ?`,
		handle,
	).Scan(&f.Handle, &f.OrigName, &f.StoragePath, &f.SizeBytes, &f.MimeType, &uploadedMs, &f.DownloadCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query file metadata: %w", err)
	}
	f.UploadedAt = time.UnixMilli(uploadedMs).UTC()
	return &f, nil
}

func (s *SQLiteStore) IncrementDownloadCount(ctx context.Context, handle string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET download_count = download_count + 1 WHERE hash = ?`,
		handle,
	)
	if err != nil {
		return fmt.Errorf("increment download count: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
