package store

import "errors"

// Errors returned by store operations. Check them with errors.Is.
var (
	// ErrNotFound is returned when a tracked metric or setting does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidMetricName is returned when a metric name is empty or
	// contains characters that can never appear as a front-matter key.
	ErrInvalidMetricName = errors.New("invalid metric name")

	// ErrMetricExists is returned when adding or renaming to a metric name
	// that is already tracked.
	ErrMetricExists = errors.New("metric already tracked")
)
