package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// PostgresStore implements Store on a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens a connection pool, validates connectivity and runs
// the embedded schema migrations.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	// Conservative pool defaults for a hundreds-of-files relay.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	drv, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, f *StoredFile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (hash, filename, filepath, filesize, mimetype, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		f.Handle, f.OrigName, f.StoragePath, f.SizeBytes, f.MimeType, f.UploadedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateHandle
		}
		return fmt.Errorf("insert file metadata: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByHandle(ctx context.Context, handle string) (*StoredFile, error) {
	var f StoredFile
	err := s.db.QueryRowContext(ctx,
		`SELECT hash, filename, filepath, filesize, mimetype, uploaded_at, download_count
		 FROM files WHERE hash = $1`,
		handle,
	).Scan(&f.Handle, &f.OrigName, &f.StoragePath, &f.SizeBytes, &f.MimeType, &f.UploadedAt, &f.DownloadCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query file metadata: %w", err)
	}
	return &f, nil
}

func (s *PostgresStore) IncrementDownloadCount(ctx context.Context, handle string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET download_count = download_count + 1 WHERE hash = $1`,
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

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
