// Package api defines the wire DTOs shared by the IPC server and the CLI,
// plus conversions from the internal library models.
package api
