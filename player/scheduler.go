package player

import (
	"runtime"
	"sync"
	"time"

	"bookplayer/debug"
	"bookplayer/midiport"
)

// Scheduler drives a compiled stream against the wall clock on its own
// goroutine and reports progress on the response bus. One run at a
// time: starting a new run cancels the previous one, and the output
// port is held exclusively for the whole run.
type Scheduler struct {
	out       midiport.Output
	responses chan Response

	mu      sync.Mutex
	cancel  chan struct{}
	playing bool
	notes   []Note

	// held by the drive goroutine for the lifetime of a run, so a new
	// run cannot write to the port before the previous one terminated
	outMu sync.Mutex
}

// NewScheduler binds a scheduler to an output port. The response bus is
// owned by the scheduler; each Start retires the previous run, whose
// remaining responses are discarded rather than delivered.
func NewScheduler(out midiport.Output) *Scheduler {
	return &Scheduler{
		out:       out,
		responses: make(chan Response, 256),
		cancel:    make(chan struct{}, 1),
	}
}

// Responses is the bus carrying progress and lifecycle messages.
func (s *Scheduler) Responses() <-chan Response { return s.responses }

// IsPlaying reports whether a run is between FilePlayStarted and its
// terminal response.
func (s *Scheduler) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Notes returns the note table of the current run for display.
func (s *Scheduler) Notes() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notes
}

// Start plays a file asynchronously. Any active run is cancelled first;
// the new run takes the port only once the old one released it. Swapping
// the cancel channel also retires the old run's view of the bus, so a
// superseded run can no longer deliver responses.
func (s *Scheduler) Start(path string, startWait time.Duration) {
	s.mu.Lock()
	// signal the previous run before swapping in a fresh cancel channel,
	// so a Start issued mid-play cannot race the old drive loop
	select {
	case s.cancel <- struct{}{}:
	default:
	}
	cancel := make(chan struct{}, 1)
	s.cancel = cancel
	s.mu.Unlock()

	s.emitTime(cancel, 0)
	go s.drive(path, startWait, cancel)
}

// Stop requests cancellation of the current run. Idempotent; the run
// terminates at the next moment boundary, worst case one moment's
// sleep later.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	select {
	case cancel <- struct{}{}:
	default:
	}
}

func (s *Scheduler) drive(path string, startWait time.Duration, cancel chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := maxPriority(); err != nil {
		debug.Warnf("scheduler", "fail to set max priority on play thread: %v", err)
	}

	s.outMu.Lock()
	defer s.outMu.Unlock()
	debug.Log("scheduler", "midi connection acquired")

	midiport.AllNotesOff(s.out)
	s.emitTime(cancel, 0)

	started := time.Now()
	stream, notes, err := CompileFile(path, startWait)
	if err != nil {
		// surfaced through the log; the scheduler returns to idle and
		// the orchestrator stays interactive
		debug.Errorf("scheduler", "error reading file %s: %v", path, err)
		return
	}
	debug.Infof("scheduler", "file compiled in %d ms", time.Since(started).Milliseconds())

	s.mu.Lock()
	s.playing = true
	s.notes = notes
	s.mu.Unlock()

	s.emit(cancel, FilePlayStarted{Path: path, Notes: notes})

	if startWait > 0 {
		time.Sleep(startWait)
	}

	ticker := NewTicker(stream.TicksPerBeat)
	var total time.Duration
	var acc uint32
	for _, m := range stream.Moments {
		select {
		case <-cancel:
			midiport.AllNotesOff(s.out)
			s.setPlaying(false)
			s.emit(cancel, FileCancelled{})
			return
		default:
		}

		acc += m.Delta
		if len(m.Events) == 0 {
			continue
		}

		// one sleep per non-empty moment keeps chords simultaneous and
		// bounds scheduler overhead; tempo changes apply on the next sleep
		d := ticker.SleepDuration(acc)
		time.Sleep(d)
		total += d
		acc = 0

		for _, ev := range m.Events {
			switch ev.Kind {
			case EventTempo:
				ticker.SetTempo(ev.TempoMicros)
			case EventMidi:
				if err := s.out.Send(ev.Msg.Bytes()); err != nil {
					// a lost byte must not hang the performance
					debug.Warnf("scheduler", "midi write failed: %v", err)
				}
			}
		}

		s.emitTime(cancel, total+startWait)
		debug.LogEvery(100, "scheduler", "elapsed %s", total+startWait)
	}

	s.setPlaying(false)
	s.emit(cancel, EndOfFile{})
}

func (s *Scheduler) setPlaying(v bool) {
	s.mu.Lock()
	s.playing = v
	s.mu.Unlock()
}

// current reports whether cancel still identifies the active run. A run
// superseded by a later Start keeps draining its stream but its
// responses are discarded, so the bus only ever carries the newest run.
func (s *Scheduler) current(cancel chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel == cancel
}

// emit delivers a lifecycle response; these must not be lost while the
// run is the active one.
func (s *Scheduler) emit(cancel chan struct{}, r Response) {
	if !s.current(cancel) {
		return
	}
	s.responses <- r
}

// emitTime delivers a progress sample; dropped when the bus is full
// rather than blocking the drive thread.
func (s *Scheduler) emitTime(cancel chan struct{}, t time.Duration) {
	if !s.current(cancel) {
		return
	}
	select {
	case s.responses <- CurrentPlayTime{Time: t}:
	default:
	}
}
