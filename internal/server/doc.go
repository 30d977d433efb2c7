// Package server implements the HTTP surface of the file relay. It wires
// the upload and download routes to the relay pipelines, renders the
// not-found and access-restricted pages, and provides the middleware
// chain (request IDs, logging, security headers, rate limiting,
// compression) plus lifecycle helpers used by tests and the production
// binary.
package server
