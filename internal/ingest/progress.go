package ingest

import "time"

// progressReporter forwards resync percentages to an Observer no more than
// once per interval. Only the latest pending percentage is kept between
// ticks. Once the input is closed and drained it flushes whatever is still
// pending, waiting for the next tick if the previous notification was less
// than an interval ago, and emits SyncComplete.
type progressReporter struct {
	observer Observer
	interval time.Duration

	in     chan int
	done   chan struct{}
	result SyncResult
}

func newProgressReporter(observer Observer, interval time.Duration) *progressReporter {
	return &progressReporter{
		observer: observer,
		interval: interval,
		// Percentages are de-duplicated upstream, so at most 101 distinct
		// values can ever be sent.
		in:   make(chan int, 101),
		done: make(chan struct{}),
	}
}

// start launches the reporter goroutine.
func (r *progressReporter) start() {
	go r.run()
}

// update hands a new percentage to the reporter.
func (r *progressReporter) update(percent int) {
	r.in <- percent
}

// finish closes the input and waits until SyncComplete has been emitted.
func (r *progressReporter) finish(result SyncResult) {
	r.result = result
	close(r.in)
	<-r.done
}

func (r *progressReporter) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var (
		in         = r.in
		pending    int
		hasPending bool
		lastEmit   time.Time
	)
	emit := func() {
		r.observer.SyncProgress(pending)
		hasPending = false
		lastEmit = time.Now()
	}

	for {
		select {
		case percent, ok := <-in:
			if ok {
				pending, hasPending = percent, true
				continue
			}
			in = nil
			if hasPending && !lastEmit.IsZero() && time.Since(lastEmit) < r.interval {
				// Leave the last value to the next tick.
				continue
			}
			if hasPending {
				emit()
			}
			r.observer.SyncComplete(r.result)
			return

		case <-ticker.C:
			if hasPending {
				emit()
			}
			if in == nil {
				r.observer.SyncComplete(r.result)
				return
			}
		}
	}
}
