// Package batcher coalesces reputation lookups into rate-limited batch queries.
//
// Callers submit one key at a time. Keys accepted for enrichment are buffered
// until the next tick, when the whole buffer is sent as a single query and
// each report in the response is routed back to the callers waiting on its
// key. A key that is already pending is not queried twice: later callers
// either share the first caller's outcome or are turned away, depending on
// the duplicate policy.
//
// Example configuration:
//
//	virustotal:
//	  queriesPerMinute: 3
//	  maxOutstanding: 25
//	  maxPending: 100
//	  pendingExpiryFlushes: 1
//	  duplicatePolicy: fanout
package batcher
