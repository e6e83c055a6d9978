// Package ipc implements the JSON-RPC control channel between the cadence
// CLI and the daemon. The server listens on a Unix domain socket and serves
// typed request/response pairs; the client wraps each call with a method per
// operation.
package ipc
