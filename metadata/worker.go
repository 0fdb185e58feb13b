package metadata

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bookplayer/debug"
)

// Command is a request handled by the worker goroutine.
type Command interface{ isCommand() }

// UpdateDatabasePath closes the current store and opens the one under
// the given play folder.
type UpdateDatabasePath struct{ Folder string }

// QueryPlayCounts asks for fresh counts. Visible paths are fetched one
// by one; Others is accepted for a later bulk pass but not fetched now.
type QueryPlayCounts struct {
	Visible []string
	Others  []string
}

// RecordPlayEvent logs one play of the given absolute path.
type RecordPlayEvent struct{ Path string }

// RecordStarEvent logs one star hit for the given absolute path.
type RecordStarEvent struct{ Path string }

func (UpdateDatabasePath) isCommand() {}
func (QueryPlayCounts) isCommand()    {}
func (RecordPlayEvent) isCommand()    {}
func (RecordStarEvent) isCommand()    {}

// FileMetadata is the per-file summary pushed back to the UI.
type FileMetadata struct {
	PlayCount uint32
	StarCount uint32
}

// databaseFileName is the store's file name inside a play folder.
const databaseFileName = "files_metadata.db"

// Worker owns the metadata store on a single goroutine. Commands go in
// through Send; refreshed count maps come back through a results slot
// drained with TryResult. Until a database has been opened the worker
// answers every query with an empty map.
type Worker struct {
	commands chan Command

	mu      sync.Mutex
	latest  map[string]FileMetadata
	hasNew  bool
	closing chan struct{}
	done    chan struct{}
}

// NewWorker starts the worker goroutine.
func NewWorker() *Worker {
	w := &Worker{
		commands: make(chan Command, 64),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// Send queues a command. It never blocks playback: when the queue is
// full the command is dropped with a log line.
func (w *Worker) Send(cmd Command) {
	select {
	case w.commands <- cmd:
	default:
		debug.Warnf("metadata", "worker queue full, dropping %T", cmd)
	}
}

// TryResult returns the most recent count map if a new one arrived
// since the last call.
func (w *Worker) TryResult() (map[string]FileMetadata, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.hasNew {
		return nil, false
	}
	w.hasNew = false
	return w.latest, true
}

// Close stops the worker and waits for the store to be closed.
func (w *Worker) Close() {
	close(w.closing)
	<-w.done
}

func (w *Worker) publish(m map[string]FileMetadata) {
	w.mu.Lock()
	w.latest = m
	w.hasNew = true
	w.mu.Unlock()
}

func (w *Worker) run() {
	defer close(w.done)

	var db *DB
	var root string
	ready := false
	defer func() {
		if db != nil {
			db.Close()
		}
	}()

	// short receive timeout keeps the loop responsive to Close even
	// when no commands arrive
	timeout := time.NewTimer(100 * time.Millisecond)
	defer timeout.Stop()

	for {
		if !timeout.Stop() {
			select {
			case <-timeout.C:
			default:
			}
		}
		timeout.Reset(100 * time.Millisecond)

		select {
		case <-w.closing:
			return
		case <-timeout.C:
			continue
		case cmd := <-w.commands:
			switch c := cmd.(type) {
			case UpdateDatabasePath:
				if db != nil {
					db.Close()
					db = nil
				}
				ready = false
				root = c.Folder
				opened, err := Open(filepath.Join(c.Folder, databaseFileName))
				if err != nil {
					debug.Errorf("metadata", "opening database in %s: %v", c.Folder, err)
					continue
				}
				if err := opened.CheckVersion(); err != nil {
					debug.Errorf("metadata", "database in %s unusable: %v", c.Folder, err)
					opened.Close()
					continue
				}
				db = opened
				ready = true

			case QueryPlayCounts:
				if !ready {
					w.publish(map[string]FileMetadata{})
					continue
				}
				w.publish(w.fetch(db, root, c.Visible))

			case RecordPlayEvent:
				if !ready {
					continue
				}
				rel := relativeKey(root, c.Path)
				if err := recordEvent(db, rel, db.AddPlayEvent); err != nil {
					debug.Errorf("metadata", "recording play of %q: %v", rel, err)
					continue
				}
				w.publish(w.fetch(db, root, []string{c.Path}))

			case RecordStarEvent:
				if !ready {
					continue
				}
				rel := relativeKey(root, c.Path)
				if err := recordEvent(db, rel, db.AddStarEvent); err != nil {
					debug.Errorf("metadata", "recording star for %q: %v", rel, err)
					continue
				}
				w.publish(w.fetch(db, root, []string{c.Path}))
			}
		}
	}
}

// recordEvent inserts an event, creating the file row first when the
// path has never been seen. An existing row is left alone so its md5
// and notes survive.
func recordEvent(db *DB, rel string, add func(string, time.Time) error) error {
	stats, err := db.QueryFileStats(rel)
	if err != nil {
		return err
	}
	if stats == nil {
		if err := db.UpsertFileStats(FileStats{RelativePath: rel}); err != nil {
			return err
		}
	}
	return add(rel, time.Now())
}

// fetch queries counts for each visible path, keyed by the path as the
// caller gave it. The short sleep between rows leaves the write path
// room on slow disks.
func (w *Worker) fetch(db *DB, root string, visible []string) map[string]FileMetadata {
	out := make(map[string]FileMetadata, len(visible))
	for _, p := range visible {
		stats, err := db.QueryFileStats(relativeKey(root, p))
		if err != nil {
			debug.Warnf("metadata", "querying %q: %v", p, err)
			continue
		}
		if stats == nil {
			out[p] = FileMetadata{}
		} else {
			out[p] = FileMetadata{PlayCount: stats.PlayCount, StarCount: stats.StarCount}
		}
		time.Sleep(time.Millisecond)
	}
	return out
}

// relativeKey maps an absolute path to its database key: the path
// relative to the play folder, with forward slashes regardless of the
// platform the row was written on.
func relativeKey(root, path string) string {
	rel := path
	if root != "" {
		if r, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	rel = strings.ReplaceAll(rel, `\`, `/`)
	return rel
}
