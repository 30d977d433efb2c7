// metrics.go - In-process counters exported in Prometheus text format
// on /metrics.
package server

import (
	"fmt"
	"net/http"
	"sync"
)

// Metrics holds application counters.
type Metrics struct {
	mu sync.RWMutex

	uploadsTotal      int64
	uploadBytesTotal  int64
	uploadErrorsTotal int64

	downloadsTotal      int64
	downloadBytesTotal  int64
	downloadErrorsTotal int64
	downloadsDenied     int64
	downloadsNotFound   int64

	requestsTotal    int64
	requestErrors4xx int64
	requestErrors5xx int64
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics returns the process-wide metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{}
	})
	return metrics
}

func (m *Metrics) RecordUpload(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadsTotal++
	m.uploadBytesTotal += bytes
}

func (m *Metrics) RecordUploadError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadErrorsTotal++
}

func (m *Metrics) RecordDownload(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadsTotal++
	m.downloadBytesTotal += bytes
}

func (m *Metrics) RecordDownloadError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadErrorsTotal++
}

func (m *Metrics) RecordDenied() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadsDenied++
}

func (m *Metrics) RecordNotFound() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadsNotFound++
}

func (m *Metrics) RecordRequest(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestsTotal++
	switch {
	case status >= 500:
		m.requestErrors5xx++
	case status >= 400:
		m.requestErrors4xx++
	}
}

// Handler returns the /metrics endpoint in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		counters := []struct {
			name  string
			help  string
			value int64
		}{
			{"zapfile_uploads_total", "Total successful uploads", m.uploadsTotal},
			{"zapfile_upload_bytes_total", "Total bytes uploaded", m.uploadBytesTotal},
			{"zapfile_upload_errors_total", "Total failed uploads", m.uploadErrorsTotal},
			{"zapfile_downloads_total", "Total successful downloads", m.downloadsTotal},
			{"zapfile_download_bytes_total", "Total bytes downloaded", m.downloadBytesTotal},
			{"zapfile_download_errors_total", "Total failed downloads", m.downloadErrorsTotal},
			{"zapfile_downloads_denied_total", "Downloads denied by access policy", m.downloadsDenied},
			{"zapfile_downloads_not_found_total", "Downloads of unknown handles", m.downloadsNotFound},
			{"zapfile_requests_total", "Total HTTP requests", m.requestsTotal},
			{"zapfile_request_errors_4xx_total", "HTTP 4xx responses", m.requestErrors4xx},
			{"zapfile_request_errors_5xx_total", "HTTP 5xx responses", m.requestErrors5xx},
		}
		for _, c := range counters {
			fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help)
			fmt.Fprintf(w, "# TYPE %s counter\n", c.name)
			fmt.Fprintf(w, "%s %d\n", c.name, c.value)
		}
	})
}

// reset zeroes all counters, used by tests.
func (m *Metrics) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadsTotal, m.uploadBytesTotal, m.uploadErrorsTotal = 0, 0, 0
	m.downloadsTotal, m.downloadBytesTotal, m.downloadErrorsTotal = 0, 0, 0
	m.downloadsDenied, m.downloadsNotFound = 0, 0
	m.requestsTotal, m.requestErrors4xx, m.requestErrors5xx = 0, 0, 0
}
