// compression.go - HTTP compression middleware.
//
// Gzips JSON and HTML responses to reduce bandwidth. File payloads are
// served as-is: their content is arbitrary and often already compressed,
// and Content-Length must stay accurate for attachment downloads.
package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
)

// compressionResponseWriter wraps http.ResponseWriter to compress responses.
type compressionResponseWriter struct {
	http.ResponseWriter
	writer io.Writer
}

func (crw *compressionResponseWriter) Write(b []byte) (int, error) {
	return crw.writer.Write(b)
}

// compressionMiddleware returns middleware that gzips compressible responses.
func compressionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !acceptsGzip(r) || isPayloadRoute(r) {
			next.ServeHTTP(w, r)
			return
		}

		gz := gzip.NewWriter(w)
		defer func() { _ = gz.Close() }()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length") // length changes with compression

		next.ServeHTTP(&compressionResponseWriter{ResponseWriter: w, writer: gz}, r)
	})
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

// isPayloadRoute reports whether the request serves a raw file payload.
// The check probe ("/check" suffix) stays compressible.
func isPayloadRoute(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/download/") &&
		!strings.HasSuffix(r.URL.Path, "/check")
}
