// Package ingest turns journal file paths into stored metrics.
//
// # Architecture
//
// Two producers feed one bounded channel:
//
//   - the change watcher (package daemon), flushing coalesced paths
//   - the resync Coordinator, submitting every file of a directory scan
//
// A fixed number of Pool workers consume the channel. For every Job a worker:
//
//  1. uses the job's tracked-metric snapshot, or re-reads the tracked set
//     from the store when the job carries none
//  2. does nothing when no metric is tracked
//  3. runs the re-parse gate (journal.Decide), unless the job is forced
//  4. extracts the front matter and upserts the records in one transaction
//  5. records the modification time observed by the gate as the fingerprint
//
// Failures are scoped to one file: they are logged, counted, reported to the
// result hook, and the worker moves on to the next job. Closing the pool is
// the only way a worker exits.
//
// # Backpressure
//
// Submit blocks while the channel is full, so producers never run ahead of
// the workers by more than the queue size. Submit honours its context, which
// lets a resync be abandoned between files.
//
// # Progress
//
// The Coordinator reports a scan to an Observer as SyncStarted, a throttled
// stream of SyncProgress percentages, and SyncComplete. Percentages are
// de-duplicated before they reach the reporter goroutine, and the reporter
// forwards at most one value per ProgressInterval.
package ingest
