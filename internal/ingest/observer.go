package ingest

import "time"

// SyncResult summarises one resync run.
type SyncResult struct {
	Root      string        `json:"root" yaml:"root"`
	Total     int           `json:"total" yaml:"total"`
	Submitted int           `json:"submitted" yaml:"submitted"`
	Cancelled bool          `json:"cancelled" yaml:"cancelled"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Observer receives resync progress. Calls for one resync arrive in order
// (SyncStarted, zero or more SyncProgress, SyncComplete) from at most one
// goroutine at a time, but not necessarily the caller's goroutine.
type Observer interface {
	SyncStarted(root string, total int)
	SyncProgress(percent int)
	SyncComplete(result SyncResult)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) SyncStarted(string, int) {}
func (NopObserver) SyncProgress(int)        {}
func (NopObserver) SyncComplete(SyncResult) {}

// MultiObserver fans notifications out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) SyncStarted(root string, total int) {
	for _, o := range m {
		o.SyncStarted(root, total)
	}
}

func (m MultiObserver) SyncProgress(percent int) {
	for _, o := range m {
		o.SyncProgress(percent)
	}
}

func (m MultiObserver) SyncComplete(result SyncResult) {
	for _, o := range m {
		o.SyncComplete(result)
	}
}
