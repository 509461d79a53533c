// Package logging provides a simple leveled logging interface for the
// remuxkit tools and the remuxd service.
//
// It supports the following log levels:
//   - TRACE: Per-packet tracing of the remux loop
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable and
// can be overridden at runtime with SetLevel (command-line verbosity flags).
package logging
