package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"zapfile/internal/jsonlog"
	"zapfile/internal/relay"
	"zapfile/internal/store"
)

// uploadResp is the JSON response returned after a successful upload.
// The hash is the public handle needed to retrieve the file later.
type uploadResp struct {
	Hash     string `json:"hash"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// uploadHandler handles POST /api/upload requests. It pulls the "file"
// multipart field out of the request and streams it into the ingestion
// pipeline; the pipeline owns hashing, the size and capacity limits, and
// metadata persistence.
//
// Responses: 200 with {hash, filename, size}; 400 when no file field is
// present or the payload is empty; 413 when the payload exceeds the
// per-file maximum; 507 when the stored-file count is at capacity.
func (cfg Config) uploadHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.MaxUploadBytes > 0 {
			// Transport guard with headroom for multipart framing; the
			// relay enforces the exact payload limit.
			r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes+1<<20)
		}

		mr, err := r.MultipartReader()
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "bad multipart")
			return
		}

		var filePart io.Reader
		var filename, contentType string

		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "bad multipart")
				return
			}
			defer func() { _ = part.Close() }()

			if part.FormName() != "file" {
				continue
			}

			filePart = part
			filename = part.FileName()
			contentType = part.Header.Get("Content-Type")
			break
		}

		if filePart == nil {
			writeJSONError(w, http.StatusBadRequest, "No file uploaded")
			return
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		receipt, err := cfg.Relay.Ingest(r.Context(), filePart, filename, contentType)
		if err != nil {
			cfg.writeUploadError(w, r, err)
			return
		}

		GetMetrics().RecordUpload(receipt.SizeBytes)
		writeJSON(w, http.StatusOK, uploadResp{
			Hash:     receipt.Handle,
			Filename: receipt.OrigName,
			Size:     receipt.SizeBytes,
		})
	})
}

// writeUploadError maps ingestion outcomes to HTTP statuses. Each failure
// mode is distinguishable by status code.
func (cfg Config) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	GetMetrics().RecordUploadError()

	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, relay.ErrNoFile):
		writeJSONError(w, http.StatusBadRequest, "No file uploaded")
	case errors.Is(err, relay.ErrTooLarge), errors.As(err, &maxBytesErr):
		writeJSONError(w, http.StatusRequestEntityTooLarge, "File too large")
	case errors.Is(err, relay.ErrCapacity):
		writeJSONError(w, http.StatusInsufficientStorage,
			fmt.Sprintf("Storage limit reached. Maximum %d files allowed.", cfg.Relay.MaxTotalFiles()))
	case errors.Is(err, store.ErrDuplicateHandle):
		jsonlog.Error("handle_collision", map[string]any{
			"rid": RequestIDFromContext(r.Context()),
		}, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to save file metadata")
	default:
		jsonlog.Error("upload_failed", map[string]any{
			"rid": RequestIDFromContext(r.Context()),
		}, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to upload file")
	}
}
