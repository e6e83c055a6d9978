// Package analysis defines the feature-extraction contract and the external
// analyzer tool client.
//
// The DSP work itself lives in a separate binary; this package invokes it
// with a per-call timeout, parses its JSON feature document, and classifies
// failures as transient or fatal-per-file so the processor can decide
// between retrying and skipping.
package analysis
