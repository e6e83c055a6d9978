// Package monitor tracks analysis progress over time and detects stalls.
//
// Snapshots of library counts are captured into the progress history on a
// fixed cadence. From that history the monitor derives processing rate and
// completion estimates, classifies overall health, flags anomalies such as
// progress regressions and stagnation, and produces the stall analysis the
// recovery controller acts on.
package monitor
