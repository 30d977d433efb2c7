package server

import (
	"fmt"
	"html/template"
	"net/http"
)

// The download endpoint is opened in browsers by people following a
// shared link, so denial and not-found render as small standalone HTML
// pages rather than JSON.

const notFoundPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>File Not Found - Zapfile</title>
  <style>
    body { margin: 0; font-family: system-ui, -apple-system, sans-serif; background: #09090b; color: #fafafa; display: flex; align-items: center; justify-content: center; min-height: 100vh; }
    .container { max-width: 500px; text-align: center; padding: 2rem; }
    h1 { font-size: 2rem; margin-bottom: 1rem; }
    p { font-size: 1rem; line-height: 1.75; color: #d4d4d8; }
    .error-code { color: #ef4444; font-weight: 600; }
  </style>
</head>
<body>
  <div class="container">
    <h1>File Not Found</h1>
    <p><span class="error-code">404:</span> This file doesn't exist or may have been deleted.</p>
    <p>The link you followed is invalid or the file is no longer available.</p>
  </div>
</body>
</html>
`

var restrictedTmpl = template.Must(template.New("restricted").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Access Restricted - Zapfile</title>
  <style>
    body { margin: 0; font-family: system-ui, -apple-system, sans-serif; background: #09090b; color: #fafafa; display: flex; align-items: center; justify-content: center; min-height: 100vh; }
    .container { max-width: 500px; text-align: center; padding: 2rem; }
    h1 { font-size: 2rem; margin-bottom: 1rem; }
    p { font-size: 1rem; line-height: 1.75; color: #d4d4d8; }
    .file-info { background: rgba(39, 39, 42, 0.5); border: 1px solid #27272a; border-radius: 0.5rem; padding: 1rem; margin-top: 1.5rem; font-size: 0.875rem; }
    .file-name { font-weight: 500; margin-bottom: 0.25rem; }
    .file-size { color: #71717a; }
  </style>
</head>
<body>
  <div class="container">
    <h1>Access Restricted</h1>
    <p>This file can only be downloaded from an allowed network.</p>
    <div class="file-info">
      <div class="file-name">File: {{.Filename}}</div>
      <div class="file-size">Size: {{.SizeKB}} KB</div>
    </div>
  </div>
</body>
</html>
`))

func renderNotFoundPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(notFoundPage))
}

func renderRestrictedPage(w http.ResponseWriter, filename string, sizeBytes int64) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_ = restrictedTmpl.Execute(w, struct {
		Filename string
		SizeKB   string
	}{
		Filename: filename,
		SizeKB:   fmt.Sprintf("%.2f", float64(sizeBytes)/1024),
	})
}
