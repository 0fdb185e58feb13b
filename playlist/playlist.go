// Package playlist manages the ordered queue of files to play. The
// head of the list is the current file; it is removed by Skip or by the
// orchestrator's auto-advance.
package playlist

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Element is one playlist entry. Duration is filled in lazily by the
// background info pass and stays nil until then.
type Element struct {
	AddedAt  time.Time
	Name     string
	Path     string
	Duration *time.Duration
}

// FromPath builds an element, using the base name for display.
func FromPath(path string) Element {
	return Element{
		AddedAt: time.Now(),
		Name:    filepath.Base(path),
		Path:    path,
	}
}

// List is a thread-safe playlist shared between the UI and the
// orchestrator.
type List struct {
	mu    sync.Mutex
	items []Element
	dirty bool
}

// New returns an empty playlist.
func New() *List {
	return &List{}
}

// Add appends an element to the end of the playlist.
func (l *List) Add(e Element) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, e)
	l.dirty = true
}

// AddPath appends a file to the end of the playlist.
func (l *List) AddPath(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, FromPath(path))
	l.dirty = true
}

// AddPathExpandingPlaylists appends a file; ".playlist" files are read
// and their entries appended instead.
func (l *List) AddPathExpandingPlaylists(path string) error {
	if strings.EqualFold(filepath.Ext(path), ".playlist") {
		elems, err := loadElements(path)
		if err != nil {
			return err
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		l.items = append(l.items, elems...)
		l.dirty = true
		return nil
	}
	l.AddPath(path)
	return nil
}

// Current returns the head of the playlist.
func (l *List) Current() (Element, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return Element{}, false
	}
	return l.items[0], true
}

// Skip removes the head of the playlist.
func (l *List) Skip() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) > 0 {
		l.items = l.items[1:]
		l.dirty = true
	}
}

// Remove deletes the element at index i.
func (l *List) Remove(i int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.items) {
		return
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	l.dirty = true
}

// Move reorders the element at from to position to.
func (l *List) Move(from, to int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if from < 0 || from >= len(l.items) || to < 0 || to >= len(l.items) || from == to {
		return
	}
	e := l.items[from]
	l.items = append(l.items[:from], l.items[from+1:]...)
	rest := append([]Element{}, l.items[to:]...)
	l.items = append(append(l.items[:to:to], e), rest...)
	l.dirty = true
}

// Dirty reports whether the playlist changed since it was loaded or
// last saved.
func (l *List) Dirty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dirty
}

// Len returns the number of entries.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Items returns a snapshot of the entries.
func (l *List) Items() []Element {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Element, len(l.items))
	copy(out, l.items)
	return out
}

// SetDuration records the computed duration for every entry with the
// given path.
func (l *List) SetDuration(path string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].Path == path && l.items[i].Duration == nil {
			dd := d
			l.items[i].Duration = &dd
		}
	}
}

// DurationOf returns the known duration for a path, or zero.
func (l *List) DurationOf(path string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].Path == path && l.items[i].Duration != nil {
			return *l.items[i].Duration
		}
	}
	return 0
}

// MissingDurations returns the paths that still need an info pass.
func (l *List) MissingDurations() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, e := range l.items {
		if e.Duration == nil && !seen[e.Path] {
			seen[e.Path] = true
			out = append(out, e.Path)
		}
	}
	return out
}

// Save writes the playlist as newline-separated paths and marks the
// list clean.
func (l *List) Save(path string) error {
	l.mu.Lock()
	items := make([]Element, len(l.items))
	copy(items, l.items)
	l.mu.Unlock()

	var b strings.Builder
	for _, e := range items {
		fmt.Fprintf(&b, "%s\n", e.Path)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return err
	}
	l.mu.Lock()
	l.dirty = false
	l.mu.Unlock()
	return nil
}

// Load reads a playlist file into a new list. The result is clean: it
// matches what is on disk.
func Load(path string) (*List, error) {
	elems, err := loadElements(path)
	if err != nil {
		return nil, err
	}
	return &List{items: elems}, nil
}

func loadElements(path string) ([]Element, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var elems []Element
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		elems = append(elems, FromPath(line))
	}
	return elems, nil
}
