// Package logging builds the component loggers of cadence.
//
// Every component logs through a stdlib *log.Logger with a bracketed prefix
// ("[daemon] ", "[ingest] ", ...). When a log file is configured, output is
// also written to a size-rotated file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the log output.
type Options struct {
	// File enables a rotated log file when non-empty.
	File string
	// MaxSizeMB is the size at which the file is rotated.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept.
	MaxBackups int
	// MaxAgeDays is the age after which rotated files are removed.
	MaxAgeDays int
	// Quiet drops stderr output. File output is unaffected.
	Quiet bool
	// Stderr overrides os.Stderr (tests).
	Stderr io.Writer
}

// Output is a shared log destination. Create one per process and derive
// component loggers from it; all of them share the same rotated file.
type Output struct {
	w    io.Writer
	file *lumberjack.Logger
}

// Open creates the log destination described by opts.
func Open(opts Options) *Output {
	var writers []io.Writer

	if !opts.Quiet {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		writers = append(writers, stderr)
	}

	out := &Output{}
	if opts.File != "" {
		out.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		writers = append(writers, out.file)
	}

	switch len(writers) {
	case 0:
		out.w = io.Discard
	case 1:
		out.w = writers[0]
	default:
		out.w = io.MultiWriter(writers...)
	}
	return out
}

// Logger returns a logger for component, prefixed "[component] ".
func (o *Output) Logger(component string) *log.Logger {
	return log.New(o.w, "["+component+"] ", log.LstdFlags)
}

// Close closes the log file, if any.
func (o *Output) Close() error {
	if o.file == nil {
		return nil
	}
	return o.file.Close()
}
