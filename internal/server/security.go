package server

import "net/http"

// securityHeadersMiddleware adds security headers to all responses.
// The service serves attachments and two static pages; the headers keep
// browsers from sniffing payloads or framing the pages.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME sniffing of served payloads
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// Don't leak handle-bearing URLs
		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}
