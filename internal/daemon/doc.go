// Package daemon keeps the metric store in step with a journal directory.
//
// # Architecture
//
// The daemon consists of several components:
//
//   - FileWatcher: fsnotify based monitoring of dated .md files, with watch
//     roots added and removed at runtime through a command channel
//   - Coalescer: collapses bursts of change events into batches of
//     distinct paths
//   - Daemon: wires watcher, coalescer, ingest.Pool and
//     ingest.Coordinator together and owns the journal root
//
// Data flows one way:
//
//	fsnotify -> FileWatcher -> Coalescer -> ingest.Pool -> store
//	                 resync -> ingest.Coordinator ----^
//
// # File Watching
//
//	fw, err := daemon.NewFileWatcher(daemon.WatcherOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fw.Stop()
//
//	if err := fw.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	if err := fw.Watch("/home/me/journal"); err != nil {
//	    log.Fatal(err)
//	}
//
//	for event := range fw.Events() {
//	    log.Printf("%s %s", event.Op, event.Path)
//	}
//
// Only regular files named like YYYY-MM-DD.md produce events. Deletions
// and renames are reported as OpDelete; the Daemon forwards them to the
// pool only under the purge deletion policy.
//
// # Coalescing
//
// Editors typically emit several write events per save. The Coalescer keeps
// a set of pending paths and flushes it when it reaches MaxBatch entries or
// when FlushInterval elapses, so N rapid writes to one file within an
// interval produce a single ingestion job.
//
// # Journal Root
//
// SetJournalRoot validates and persists a new root, stops watching the old
// root, resyncs the new one with progress reporting, then watches it. The
// sequence runs under one lock, as do AddHabit and RenameHabit, which
// force a resync to back-fill history for the new metric name.
package daemon
