// Package store persists file metadata keyed by the public handle.
// Two backends implement the same interface: PostgreSQL for deployments
// that already run one, and a single-file SQLite database for everything
// else. The handle's uniqueness constraint lives here; it is the backstop
// against truncated-digest collisions.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no row exists for a handle. Absence is
	// a normal outcome, not a fault.
	ErrNotFound = errors.New("file not found")

	// ErrDuplicateHandle is returned when an insert races or collides with
	// an existing handle. The existing row is never overwritten.
	ErrDuplicateHandle = errors.New("handle already exists")
)

// StoredFile is one uploaded object's metadata row.
type StoredFile struct {
	Handle        string
	OrigName      string
	StoragePath   string
	SizeBytes     int64
	MimeType      string
	UploadedAt    time.Time
	DownloadCount int64
}

// Store is the metadata store shared by the ingestion and retrieval
// pipelines. Implementations must be safe for concurrent use.
type Store interface {
	// Insert persists a new row. Returns ErrDuplicateHandle if the handle
	// is already taken; the insert is atomic either way.
	Insert(ctx context.Context, f *StoredFile) error

	// GetByHandle returns the row for a handle, or ErrNotFound.
	GetByHandle(ctx context.Context, handle string) (*StoredFile, error)

	// IncrementDownloadCount bumps the counter by one. Callers treat
	// failures as best-effort: an already-served download is not reversed.
	IncrementDownloadCount(ctx context.Context, handle string) error

	// Count returns the number of stored rows, used for the capacity
	// admission check.
	Count(ctx context.Context) (int, error)

	Close() error
}

// Open selects a backend from the DSN: postgres:// and postgresql:// URLs
// open the PostgreSQL store, anything else is treated as a SQLite file path.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		return nil, errors.New("store DSN is empty")
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return OpenPostgres(dsn)
	}
	return OpenSQLite(dsn)
}
