// Package blob holds raw file payloads, addressed by an opaque location
// string that only the metadata store ever sees. Backends: local
// filesystem and S3-compatible object storage (MinIO).
package blob

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotExist is returned by Get when the location holds no payload.
	ErrNotExist = errors.New("blob does not exist")

	// ErrExists is returned by Put when the name is already occupied.
	// An existing payload is never replaced.
	ErrExists = errors.New("blob already exists")
)

// Store is the payload store used by the ingestion and retrieval
// pipelines. Locations are assigned by Put and are never derived from
// client input.
type Store interface {
	// Put streams r into the store under the given name and returns the
	// payload's location. The payload must not be observable at that
	// location until the write has fully completed. Returns ErrExists if
	// the name is already occupied; the occupant is left untouched.
	Put(ctx context.Context, name string, r io.Reader) (string, error)

	// Get opens the payload at location for reading. Returns ErrNotExist
	// if there is none.
	Get(ctx context.Context, location string) (io.ReadCloser, error)

	// Exists reports whether a payload is present at location.
	Exists(ctx context.Context, location string) (bool, error)

	// Remove deletes the payload at location. Removing an absent payload
	// is not an error.
	Remove(ctx context.Context, location string) error
}
