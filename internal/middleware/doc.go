// Package middleware provides the HTTP middleware of remuxd.
//
// It includes:
//   - Request IDs (X-Request-ID), generated when the client sends none
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labelled by route template
package middleware
