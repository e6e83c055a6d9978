// Package processor runs the concurrent feature-extraction pipeline.
//
// A Pool loads tracks needing analysis into an in-memory priority queue,
// fans them out to a fixed set of workers, and applies the failure policy:
// exponential-backoff retries for transient errors, permanent skips for
// tracks that keep failing or whose errors indicate an unusable source
// file. Completed work is checkpointed to disk so progress survives
// restarts.
package processor
