package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/CleoKiama/cadence/internal/journal"
)

// ErrWatcherStopped is returned by Watch and Unwatch once the watcher has
// been stopped or before it was started.
var ErrWatcherStopped = errors.New("watcher not running")

// EventOp is the kind of change observed on a journal file.
type EventOp int

const (
	OpCreate EventOp = iota
	OpModify
	// OpDelete covers removal and renaming away.
	OpDelete
)

func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileEvent is a change to a journal file.
type FileEvent struct {
	Path string
	Op   EventOp
}

type commandKind int

const (
	cmdWatch commandKind = iota
	cmdUnwatch
)

// command asks the event loop to change the watch set. The loop owns the
// fsnotify watch list; every change goes through this channel.
type command struct {
	kind  commandKind
	path  string
	reply chan error
}

// WatcherOptions configures a FileWatcher.
type WatcherOptions struct {
	// Recursive also watches every non-hidden subdirectory of a root,
	// including ones created later.
	Recursive bool
}

// FileWatcher watches journal roots for changes to dated .md files.
//
// Roots are added and removed at runtime with Watch and Unwatch, which are
// handled by the event loop itself, so they are safe to call from any
// goroutine while events are flowing.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	opts     WatcherOptions
	events   chan FileEvent
	errors   chan error
	commands chan command
	done     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	stopped  bool

	// roots and dirs are only touched by the event loop.
	roots map[string]struct{}
	dirs  map[string]string // watched directory -> its root
}

// NewFileWatcher returns a stopped watcher; call Start, then Watch.
func NewFileWatcher(opts WatcherOptions) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &FileWatcher{
		watcher:  watcher,
		opts:     opts,
		events:   make(chan FileEvent, 100),
		errors:   make(chan error, 10),
		commands: make(chan command, 10),
		done:     make(chan struct{}),
		roots:    make(map[string]struct{}),
		dirs:     make(map[string]string),
	}, nil
}

// Start launches the event loop. No directory is watched until Watch is
// called.
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return errors.New("watcher already started")
	}
	if fw.stopped {
		return ErrWatcherStopped
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.loop()

	return nil
}

// Stop ends the event loop and closes Events and Errors. Calling it again
// is a no-op.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if fw.stopped {
		fw.mu.Unlock()
		return nil
	}
	wasRunning := fw.running
	fw.running = false
	fw.stopped = true
	fw.mu.Unlock()

	close(fw.done)

	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	if wasRunning {
		fw.wg.Wait()
	}

	close(fw.events)
	close(fw.errors)

	return nil
}

// Watch adds root to the watch set. Watching a root twice is a no-op.
func (fw *FileWatcher) Watch(root string) error {
	return fw.send(cmdWatch, root)
}

// Unwatch removes root, and any subdirectory watched because of it, from
// the watch set. Unwatching an unknown root is a no-op.
func (fw *FileWatcher) Unwatch(root string) error {
	return fw.send(cmdUnwatch, root)
}

func (fw *FileWatcher) send(kind commandKind, path string) error {
	if !fw.IsRunning() {
		return ErrWatcherStopped
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	cmd := command{kind: kind, path: abs, reply: make(chan error, 1)}
	select {
	case fw.commands <- cmd:
	case <-fw.done:
		return ErrWatcherStopped
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-fw.done:
		return ErrWatcherStopped
	}
}

// Events delivers journal file changes until Stop.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors delivers fsnotify errors, e.g. a kernel queue overflow.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

// WatchList returns the directories currently watched, sorted.
func (fw *FileWatcher) WatchList() []string {
	list := fw.watcher.WatchList()
	sort.Strings(list)
	return list
}

// loop applies watch commands and forwards journal events.
func (fw *FileWatcher) loop() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case cmd := <-fw.commands:
			var err error
			switch cmd.kind {
			case cmdWatch:
				err = fw.addRoot(cmd.path)
			case cmdUnwatch:
				fw.removeRoot(cmd.path)
			}
			cmd.reply <- err

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if fw.opts.Recursive && event.Has(fsnotify.Create) {
				fw.maybeAddSubdir(event.Name)
			}

			if fe, ok := journalEvent(event); ok {
				select {
				case fw.events <- fe:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}

			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

func (fw *FileWatcher) addRoot(root string) error {
	if _, ok := fw.roots[root]; ok {
		return nil
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("failed to watch %s: not a directory", root)
	}

	dirs := []string{root}
	if fw.opts.Recursive {
		dirs, err = subdirs(root)
		if err != nil {
			return fmt.Errorf("failed to list subdirectories of %s: %w", root, err)
		}
	}

	for i, dir := range dirs {
		if err := fw.watcher.Add(dir); err != nil {
			// Roll back the partial watch
			for _, added := range dirs[:i] {
				fw.watcher.Remove(added)
				delete(fw.dirs, added)
			}
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		fw.dirs[dir] = root
	}

	fw.roots[root] = struct{}{}
	return nil
}

func (fw *FileWatcher) removeRoot(root string) {
	if _, ok := fw.roots[root]; !ok {
		return
	}

	for dir, owner := range fw.dirs {
		if owner != root {
			continue
		}
		// The directory may already be gone, in which case fsnotify
		// dropped the watch itself.
		fw.watcher.Remove(dir)
		delete(fw.dirs, dir)
	}
	delete(fw.roots, root)
}

// maybeAddSubdir starts watching a directory created inside a watched root.
func (fw *FileWatcher) maybeAddSubdir(path string) {
	root, ok := fw.dirs[filepath.Dir(path)]
	if !ok || isHidden(filepath.Base(path)) {
		return
	}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}

	dirs, err := subdirs(path)
	if err != nil {
		return
	}
	for _, dir := range dirs {
		if err := fw.watcher.Add(dir); err == nil {
			fw.dirs[dir] = root
		}
	}
}

// journalEvent maps an fsnotify event on a dated journal file to a
// FileEvent. Other files and chmod-only events report false.
func journalEvent(event fsnotify.Event) (FileEvent, bool) {
	if !journal.IsJournalName(filepath.Base(event.Name)) {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A rename reports the old name; the new name arrives as a create.
		op = OpDelete
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	default:
		return FileEvent{}, false
	}

	if op != OpDelete {
		info, err := os.Stat(event.Name)
		if err != nil || !info.Mode().IsRegular() {
			return FileEvent{}, false
		}
	}

	return FileEvent{Path: event.Name, Op: op}, true
}

// subdirs returns dir and every non-hidden directory below it.
func subdirs(dir string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs, err
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
