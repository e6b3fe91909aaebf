// Package batch runs one operation over several follow-up threads and
// reports a result per thread.
//
// Partial failures never abort the batch: every id gets a Result, and the
// aggregate counts are computed by Summarize.
package batch
