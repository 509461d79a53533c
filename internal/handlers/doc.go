// Package handlers provides the HTTP handlers of the remuxd API.
//
// It includes handlers for:
//   - Submitting, listing, inspecting and canceling jobs
//   - Uploading inputs into the work directory and downloading outputs
//   - Health, liveness and readiness checks
//   - Version information and Prometheus metrics
package handlers
