// Package recovery restarts stalled analysis automatically.
//
// A Controller polls the monitor on a fixed interval. When analysis is
// stalled, or tracks sit in analyzing status past the stuck threshold, it
// invokes the configured restart callback. Failed attempts back off
// exponentially up to a ceiling, and repeated failures escalate to
// requiring manual intervention.
package recovery
