// Package player holds the real-time play engine: the event compiler,
// the scheduler driving a MIDI output against the wall clock, and the
// orchestrator coupling scheduler, playlist and play mode.
package player

import (
	"time"

	"gitlab.com/gomidi/midi/v2/smf"
)

// Note is a display record: one sounded note of the current file. The
// note table is built once by the compiler and shared read-only with
// the UI.
type Note struct {
	Channel uint8
	Key     uint8
	Start   time.Duration
	Length  time.Duration
}

// EventKind discriminates compiled events.
type EventKind uint8

const (
	// EventTempo changes the beat duration, effective immediately.
	EventTempo EventKind = iota
	// EventMidi is a channel message to be written to the output port.
	EventMidi
)

// Event is one compiled stream event. Opaque meta events are discarded
// at compile time, so only tempo and channel messages remain.
type Event struct {
	Kind        EventKind
	TempoMicros uint32 // microseconds per beat, EventTempo only
	Msg         smf.Message
}

// Moment groups the events sharing one absolute time, Delta ticks after
// the previous moment. Moments with no events are legal; the scheduler
// accumulates their deltas into the next sleep.
type Moment struct {
	Delta  uint32
	Events []Event
}

// Stream is a compiled, time-ordered event stream.
type Stream struct {
	TicksPerBeat uint16
	Moments      []Moment
}

// Responses from the scheduler to the UI, in emission order within a
// run: CurrentPlayTime(0), FilePlayStarted, interleaved CurrentPlayTime,
// then exactly one of EndOfFile or FileCancelled.
type Response interface{ isResponse() }

// EndOfFile signals that the last moment was played.
type EndOfFile struct{}

// FileCancelled signals that a run was stopped before its end.
type FileCancelled struct{}

// CurrentPlayTime carries the authoritative elapsed play time.
type CurrentPlayTime struct{ Time time.Duration }

// FilePlayStarted announces a run together with its note table.
type FilePlayStarted struct {
	Path  string
	Notes []Note
}

func (EndOfFile) isResponse()       {}
func (FileCancelled) isResponse()   {}
func (CurrentPlayTime) isResponse() {}
func (FilePlayStarted) isResponse() {}
