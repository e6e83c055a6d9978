// Command cadence is the control CLI for the cadenced daemon. It talks to
// the daemon over a Unix socket and renders status, health, and track
// information for the terminal.
package main
