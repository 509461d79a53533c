// Package cli holds the plumbing shared by the command-line tools: the
// -v/-d/-t/-version flags, log level selection, signal handling, the
// metrics textfile and the exit code convention (2 for policy refusals,
// 1 for other failures).
package cli
