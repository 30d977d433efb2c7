package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"zapfile/internal/jsonlog"
	"zapfile/internal/policy"
	"zapfile/internal/relay"
	"zapfile/internal/store"
)

// checkResp is the JSON response of the non-destructive permission probe.
type checkResp struct {
	Allowed  bool          `json:"allowed"`
	FileInfo checkFileInfo `json:"file_info"`
}

type checkFileInfo struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// checkHandler handles GET /api/download/{hash}/check. It evaluates the
// lookup and the access policy for the requester's origin without
// transferring the payload or touching the download counter, so a client
// can test permission before attempting the real transfer.
func (cfg Config) checkHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := r.PathValue("hash")
		if !relay.ValidHandle(hash) {
			writeJSONError(w, http.StatusBadRequest, "Invalid file handle")
			return
		}

		origin := policy.ResolveOrigin(r.Header, r.RemoteAddr)
		res, err := cfg.Relay.Check(r.Context(), hash, origin)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeJSONError(w, http.StatusNotFound, "File not found")
				return
			}
			jsonlog.Error("check_failed", map[string]any{
				"rid": RequestIDFromContext(r.Context()),
			}, err)
			writeJSONError(w, http.StatusInternalServerError, "Failed to check access")
			return
		}

		writeJSON(w, http.StatusOK, checkResp{
			Allowed: res.Allowed,
			FileInfo: checkFileInfo{
				Filename: res.OrigName,
				Size:     res.SizeBytes,
			},
		})
	})
}

// downloadHandler handles GET /api/download/{hash}. On allow it serves
// the payload as an attachment; on deny it renders the human-readable
// restricted page (403, with filename and size so the reader knows what
// they are missing); unknown handles get the not-found page (404). A
// metadata row whose payload has vanished is a server-side fault and gets
// a 500 distinct from not-found.
func (cfg Config) downloadHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := r.PathValue("hash")
		if !relay.ValidHandle(hash) {
			writeJSONError(w, http.StatusBadRequest, "Invalid file handle")
			return
		}

		origin := policy.ResolveOrigin(r.Header, r.RemoteAddr)
		dl, err := cfg.Relay.Retrieve(r.Context(), hash, origin)
		if err != nil {
			cfg.writeDownloadError(w, r, err)
			return
		}
		defer func() { _ = dl.Body.Close() }()

		if dl.MimeType != "" {
			w.Header().Set("Content-Type", dl.MimeType)
		} else {
			w.Header().Set("Content-Type", "application/octet-stream")
		}
		if dl.SizeBytes > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(dl.SizeBytes, 10))
		}
		// FormatMediaType quotes and escapes the display name; building
		// the header by hand breaks on filenames containing quotes.
		disposition := mime.FormatMediaType("attachment", map[string]string{"filename": dl.OrigName})
		if disposition == "" {
			disposition = "attachment"
		}
		w.Header().Set("Content-Disposition", disposition)

		w.WriteHeader(http.StatusOK)

		// The counter already incremented at handoff; a disconnect during
		// the copy does not roll it back.
		_, _ = io.Copy(w, dl.Body)
		GetMetrics().RecordDownload(dl.SizeBytes)
	})
}

func (cfg Config) writeDownloadError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *relay.DeniedError
	switch {
	case errors.Is(err, store.ErrNotFound):
		GetMetrics().RecordNotFound()
		renderNotFoundPage(w)
	case errors.As(err, &denied):
		GetMetrics().RecordDenied()
		renderRestrictedPage(w, denied.OrigName, denied.SizeBytes)
	case errors.Is(err, relay.ErrPayloadMissing):
		GetMetrics().RecordDownloadError()
		writeJSONError(w, http.StatusInternalServerError, "File missing from storage")
	default:
		GetMetrics().RecordDownloadError()
		jsonlog.Error("download_failed", map[string]any{
			"rid": RequestIDFromContext(r.Context()),
		}, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to download file")
	}
}
