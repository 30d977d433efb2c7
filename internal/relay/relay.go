// Package relay implements the upload ingestion and gated-retrieval
// pipelines: handle derivation, capacity enforcement, payload placement
// with metadata persistence, and the origin-gated download path.
package relay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"zapfile/internal/blob"
	"zapfile/internal/jsonlog"
	"zapfile/internal/policy"
	"zapfile/internal/store"
)

// handleLength is the number of hex characters kept from the payload
// digest. Short enough for a shareable URL; the store's uniqueness
// constraint catches the (negligible) truncated collisions.
const handleLength = 24

var (
	// ErrNoFile is returned when the uploaded payload is empty or absent.
	ErrNoFile = errors.New("no file uploaded")

	// ErrTooLarge is returned when the payload exceeds the per-file limit.
	ErrTooLarge = errors.New("file exceeds maximum size")

	// ErrCapacity is returned when the stored-file count is at the limit.
	ErrCapacity = errors.New("storage limit reached")

	// ErrPayloadMissing is returned when metadata exists but the payload
	// has vanished from the blob store.
	ErrPayloadMissing = errors.New("payload missing from storage")
)

// DeniedError is returned when the access policy rejects the requester's
// origin. It carries non-sensitive metadata so the caller can explain the
// restriction.
type DeniedError struct {
	OrigName  string
	SizeBytes int64
}

func (e *DeniedError) Error() string { return "access denied for origin" }

// Receipt is returned to the uploader on success.
type Receipt struct {
	Handle    string
	OrigName  string
	SizeBytes int64
}

// CheckResult is the outcome of a non-destructive permission probe.
type CheckResult struct {
	Allowed   bool
	OrigName  string
	SizeBytes int64
}

// Download is a granted retrieval. The caller must close Body.
type Download struct {
	Body      io.ReadCloser
	OrigName  string
	MimeType  string
	SizeBytes int64
}

// Service wires the metadata store, blob store and access policy into the
// two pipelines. Limits are fixed at construction.
type Service struct {
	store         store.Store
	blobs         blob.Store
	policy        *policy.Policy
	maxFileBytes  int64
	maxTotalFiles int
}

func New(st store.Store, bs blob.Store, pol *policy.Policy, maxFileBytes int64, maxTotalFiles int) *Service {
	return &Service{
		store:         st,
		blobs:         bs,
		policy:        pol,
		maxFileBytes:  maxFileBytes,
		maxTotalFiles: maxTotalFiles,
	}
}

// MaxFileBytes returns the configured per-file size limit.
func (s *Service) MaxFileBytes() int64 { return s.maxFileBytes }

// MaxTotalFiles returns the configured stored-file capacity.
func (s *Service) MaxTotalFiles() int { return s.maxTotalFiles }

// Ingest streams an uploaded payload into storage and persists its
// metadata. The payload spools to a local temp file while the digest is
// computed, so oversized uploads are cut off during transfer and nothing
// oversized ever reaches the blob store. Any failure after the payload
// has been placed removes it again; no orphan blobs, no orphan rows.
func (s *Service) Ingest(ctx context.Context, r io.Reader, origName, mimeType string) (*Receipt, error) {
	tmp, err := os.CreateTemp("", "zapfile-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	digest := sha256.New()

	// Read one byte past the limit so an exactly-max payload passes and
	// max+1 fails without buffering the rest of an oversized stream.
	n, err := io.Copy(io.MultiWriter(tmp, digest), io.LimitReader(r, s.maxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	if n == 0 {
		return nil, ErrNoFile
	}
	if n > s.maxFileBytes {
		return nil, ErrTooLarge
	}

	// Admission-time capacity check. Approximate under concurrent uploads
	// near the limit; racing uploads may briefly exceed it by their count.
	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count stored files: %w", err)
	}
	if count >= s.maxTotalFiles {
		return nil, ErrCapacity
	}

	now := time.Now().UTC()
	// Salting with the upload time decorrelates identical re-uploads;
	// nanosecond precision keeps back-to-back uploads of the same bytes
	// from colliding.
	digest.Write([]byte(strconv.FormatInt(now.UnixNano(), 10)))
	handle := hex.EncodeToString(digest.Sum(nil))[:handleLength]

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind spool file: %w", err)
	}

	location, err := s.blobs.Put(ctx, handle+safeExt(origName), tmp)
	if err != nil {
		if errors.Is(err, blob.ErrExists) {
			// The truncated handle is already taken. The occupant's
			// payload stays untouched; surface the collision the same
			// way the metadata store would.
			return nil, store.ErrDuplicateHandle
		}
		return nil, fmt.Errorf("place payload: %w", err)
	}

	f := &store.StoredFile{
		Handle:      handle,
		OrigName:    origName,
		StoragePath: location,
		SizeBytes:   n,
		MimeType:    mimeType,
		UploadedAt:  now,
	}
	if err := s.store.Insert(ctx, f); err != nil {
		if rmErr := s.blobs.Remove(ctx, location); rmErr != nil {
			jsonlog.Error("orphan_blob_cleanup_failed", map[string]any{
				"location": location,
			}, rmErr)
		}
		return nil, err
	}

	return &Receipt{Handle: handle, OrigName: origName, SizeBytes: n}, nil
}

// Check evaluates lookup plus policy for a handle without touching the
// payload or the counter. Idempotent for a fixed configuration.
func (s *Service) Check(ctx context.Context, handle, origin string) (*CheckResult, error) {
	f, err := s.store.GetByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	return &CheckResult{
		Allowed:   s.policy.Allowed(origin),
		OrigName:  f.OrigName,
		SizeBytes: f.SizeBytes,
	}, nil
}

// Retrieve resolves a handle to its payload, gated by the access policy.
// Outcomes are distinguishable: store.ErrNotFound, *DeniedError (with
// display metadata), ErrPayloadMissing, or a Download. The counter
// increments once the transfer is handed off; an increment failure is
// logged and does not fail the already-granted download.
func (s *Service) Retrieve(ctx context.Context, handle, origin string) (*Download, error) {
	f, err := s.store.GetByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}

	if !s.policy.Allowed(origin) {
		return nil, &DeniedError{OrigName: f.OrigName, SizeBytes: f.SizeBytes}
	}

	ok, err := s.blobs.Exists(ctx, f.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("check payload: %w", err)
	}
	if !ok {
		// Metadata and blob storage have drifted; worth operator attention.
		jsonlog.Error("payload_missing", map[string]any{
			"handle":   f.Handle,
			"location": f.StoragePath,
		}, nil)
		return nil, ErrPayloadMissing
	}

	body, err := s.blobs.Get(ctx, f.StoragePath)
	if err != nil {
		if errors.Is(err, blob.ErrNotExist) {
			return nil, ErrPayloadMissing
		}
		return nil, fmt.Errorf("open payload: %w", err)
	}

	if err := s.store.IncrementDownloadCount(ctx, f.Handle); err != nil {
		jsonlog.Warn("download_count_increment_failed", map[string]any{
			"handle": f.Handle,
			"error":  err.Error(),
		})
	}

	return &Download{
		Body:      body,
		OrigName:  f.OrigName,
		MimeType:  f.MimeType,
		SizeBytes: f.SizeBytes,
	}, nil
}

// ValidHandle reports whether s has the shape of an issued handle:
// exactly handleLength lowercase hex characters.
func ValidHandle(s string) bool {
	if len(s) != handleLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// safeExt extracts the original filename's extension for the blob name.
// The display name itself is never used in a path; anything but a short
// plain-ASCII extension is dropped.
func safeExt(origName string) string {
	ext := filepath.Ext(filepath.Base(origName))
	if ext == "" || ext == "." || len(ext) > 16 {
		return ""
	}
	for _, c := range ext[1:] {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		default:
			return ""
		}
	}
	return ext
}
