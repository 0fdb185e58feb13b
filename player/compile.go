package player

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gitlab.com/gomidi/midi/v2/smf"

	"bookplayer/book"
	"bookplayer/debug"
)

// ErrInvalidFile is returned when a file cannot be parsed.
var ErrInvalidFile = errors.New("invalid file")

// ErrEmptyStream is returned when a file yields no playable events.
var ErrEmptyStream = errors.New("empty event stream")

// absEvent is an smf event placed at an absolute tick, used while
// merging tracks.
type absEvent struct {
	at  uint64
	msg smf.Message
}

// CompileSMF merges the tracks of a parsed MIDI file into a stream and
// builds the note table in the same walk. Format 1 files are merged in
// parallel preserving relative time; formats 0 and 2 play their tracks
// back to back. startWait shifts the note table only; the scheduler
// sleeps before driving the stream.
func CompileSMF(s *smf.SMF, startWait time.Duration) (*Stream, []Note, error) {
	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, nil, fmt.Errorf("unsupported SMPTE timing: %w", ErrInvalidFile)
	}
	ticksPerBeat := mt.Resolution()
	if ticksPerBeat == 0 {
		ticksPerBeat = DefaultTicksPerBeat
	}

	var merged []absEvent
	if s.Format() == 1 {
		for _, tr := range s.Tracks {
			var at uint64
			for _, ev := range tr {
				at += uint64(ev.Delta)
				merged = append(merged, absEvent{at: at, msg: ev.Message})
			}
		}
		sort.SliceStable(merged, func(i, j int) bool { return merged[i].at < merged[j].at })
	} else {
		var offset uint64
		for _, tr := range s.Tracks {
			at := offset
			for _, ev := range tr {
				at += uint64(ev.Delta)
				merged = append(merged, absEvent{at: at, msg: ev.Message})
			}
			offset = at
		}
	}

	stream := &Stream{TicksPerBeat: ticksPerBeat}
	midiEvents := 0
	var prevAt uint64
	var cur *Moment
	for i, ae := range merged {
		if i == 0 || ae.at != prevAt {
			stream.Moments = append(stream.Moments, Moment{Delta: uint32(ae.at - prevAt)})
			cur = &stream.Moments[len(stream.Moments)-1]
			prevAt = ae.at
		}
		if ev, ok := compileEvent(ae.msg); ok {
			cur.Events = append(cur.Events, ev)
			if ev.Kind == EventMidi {
				midiEvents++
			}
		}
	}
	if midiEvents == 0 {
		return nil, nil, ErrEmptyStream
	}

	notes := buildNotes(stream, startWait)
	return stream, notes, nil
}

// compileEvent classifies a raw message. Tempo metas become tempo
// events, channel voice messages pass through, everything else is
// discarded.
func compileEvent(msg smf.Message) (Event, bool) {
	var bpm float64
	if msg.GetMetaTempo(&bpm) {
		if bpm <= 0 {
			return Event{}, false
		}
		return Event{Kind: EventTempo, TempoMicros: uint32(60_000_000.0 / bpm)}, true
	}
	b := msg.Bytes()
	if len(b) > 0 && b[0] >= 0x80 && b[0] < 0xF0 {
		return Event{Kind: EventMidi, Msg: msg}, true
	}
	return Event{}, false
}

// buildNotes flattens a stream into display notes. A per-(channel,key)
// stack of pending start times pairs NoteOn with the most recent
// matching NoteOff; unmatched events are skipped.
func buildNotes(stream *Stream, startWait time.Duration) []Note {
	ticker := NewTicker(stream.TicksPerBeat)
	pending := make([][]time.Duration, 16*128)
	var notes []Note
	var total time.Duration
	var acc uint32

	for _, m := range stream.Moments {
		acc += m.Delta
		if len(m.Events) == 0 {
			continue
		}
		total += ticker.SleepDuration(acc)
		acc = 0
		for _, ev := range m.Events {
			switch ev.Kind {
			case EventTempo:
				ticker.SetTempo(ev.TempoMicros)
			case EventMidi:
				var ch, key, vel uint8
				switch {
				case ev.Msg.GetNoteStart(&ch, &key, &vel):
					idx := int(ch)*128 + int(key)
					pending[idx] = append(pending[idx], total)
				case ev.Msg.GetNoteEnd(&ch, &key):
					idx := int(ch)*128 + int(key)
					if n := len(pending[idx]); n > 0 {
						start := pending[idx][n-1]
						pending[idx] = pending[idx][:n-1]
						notes = append(notes, Note{
							Channel: ch,
							Key:     key,
							Start:   start + startWait,
							Length:  total - start,
						})
					}
				}
			}
		}
	}
	return notes
}

// CompileMIDIFile parses and compiles a standard MIDI file.
func CompileMIDIFile(path string, startWait time.Duration) (*Stream, []Note, error) {
	s, err := smf.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %v: %w", path, err, ErrInvalidFile)
	}
	return CompileSMF(s, startWait)
}

// CompileBook compiles a book against a conversion. The note table is
// built from the holes themselves (channel 0, key = track) so the book
// renderer can show the card rather than the mapped pitches.
func CompileBook(vb *book.VirtualBook, conv *book.Conversion, startWait time.Duration) (*Stream, []Note, error) {
	s, unmapped, err := book.Compile(vb, conv)
	if err != nil {
		if errors.Is(err, book.ErrEmptyStream) {
			return nil, nil, ErrEmptyStream
		}
		return nil, nil, err
	}
	if unmapped > 0 {
		debug.Warnf("player", "book has %d holes on unmapped tracks", unmapped)
	}

	stream, _, err := CompileSMF(s, 0)
	if err != nil {
		return nil, nil, err
	}

	// the stream shifts all holes so the earliest timestamp is zero; the
	// table applies the same shift or the display would omit notes the
	// stream plays
	var smallest int64
	for _, h := range vb.Holes {
		if h.Timestamp < smallest {
			smallest = h.Timestamp
		}
	}

	var notes []Note
	for _, h := range vb.Holes {
		if h.Length <= 0 {
			continue
		}
		notes = append(notes, Note{
			Channel: 0,
			Key:     uint8(h.Track),
			Start:   time.Duration(h.Timestamp-smallest)*time.Microsecond + startWait,
			Length:  time.Duration(h.Length) * time.Microsecond,
		})
	}
	return stream, notes, nil
}

// CompileFile dispatches on the file extension: ".mid" files are parsed
// as standard MIDI, ".book" files are read and converted using the
// conversion resolved next to them.
func CompileFile(path string, startWait time.Duration) (*Stream, []Note, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mid", ".midi":
		debug.Infof("player", "reading midi file: %s", path)
		return CompileMIDIFile(path, startWait)
	case ".book":
		debug.Infof("player", "reading book file: %s", path)
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		vb, err := book.ReadBookStream(f)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing %s: %v: %w", path, err, ErrInvalidFile)
		}
		conv, err := book.ResolveConversion(vb, filepath.Dir(path))
		if err != nil {
			return nil, nil, err
		}
		return CompileBook(vb, conv, startWait)
	}
	return nil, nil, fmt.Errorf("unknown file type %s: %w", path, ErrInvalidFile)
}

// FileInfo computes the playable duration of a file for display in the
// playlist: the end of its last note.
func FileInfo(path string) (time.Duration, error) {
	_, notes, err := CompileFile(path, 0)
	if err != nil {
		return 0, err
	}
	var max time.Duration
	for _, n := range notes {
		if end := n.Start + n.Length; end > max {
			max = end
		}
	}
	return max, nil
}
