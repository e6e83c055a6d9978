// Package daemon composes the library store, worker pool, progress monitor,
// and auto-recovery controller into a single long-running process guarded by
// a lock file. It exposes the operations the IPC layer serves to the CLI.
package daemon
