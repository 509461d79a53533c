// Package avtest provides in-memory implementations of the av contracts
// for tests. Nothing here touches a real media framework.
package avtest
