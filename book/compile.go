package book

import (
	"errors"
	"sort"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"bookplayer/debug"
)

// TicksPerBeat is the fixed resolution of compiled books. Together with
// the 120 BPM assumption it is baked into the delta-tick formula below;
// changing either would retime every compiled book.
const TicksPerBeat uint16 = 10_000

const compiledBPM = 120

// ErrEmptyStream is returned when a book yields no events after
// filtering and mapping.
var ErrEmptyStream = errors.New("no events after filtering")

// ErrUnmappedTracks reports holes whose track has no conversion entry.
// It is a warning: compilation succeeds without those holes.
var ErrUnmappedTracks = errors.New("unmapped tracks in book")

type eventType uint8

const (
	activate eventType = iota
	deactivate
)

// holeEvent explodes a hole into its start and stop edges, the shape
// MIDI output needs.
type holeEvent struct {
	timestamp int64
	channel   uint8
	note      uint8
	kind      eventType
}

// Compile converts a book to a single-track SMF at TicksPerBeat
// resolution. Holes are shifted so the earliest timestamp is zero,
// zero-length holes are dropped, and holes without a conversion entry
// are skipped (counted as unmapped).
//
// The returned unmapped count is informational; callers decide whether
// to surface ErrUnmappedTracks to the user.
func Compile(vb *VirtualBook, conv *Conversion) (*smf.SMF, int, error) {
	// shift the result when there are some negative elements in the book
	var smallest int64
	for _, h := range vb.Holes {
		if h.Timestamp < smallest {
			smallest = h.Timestamp
		}
	}

	events := make([]holeEvent, 0, len(vb.Holes)*2)
	unmapped := 0
	for _, h := range vb.Holes {
		if h.Length <= 0 {
			continue
		}
		m, ok := conv.Mapping[h.Track]
		if !ok {
			unmapped++
			continue
		}
		start := h.Timestamp - smallest
		events = append(events,
			holeEvent{timestamp: start, channel: m.MidiChannel, note: m.Note, kind: activate},
			holeEvent{timestamp: start + h.Length, channel: m.MidiChannel, note: m.Note, kind: deactivate},
		)
	}

	if unmapped > 0 {
		debug.Warnf("book", "%d holes reference unmapped tracks in scale %q", unmapped, vb.Scale.Name)
	}
	if len(events) == 0 {
		return nil, unmapped, ErrEmptyStream
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].timestamp < events[j].timestamp
	})

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(TicksPerBeat)

	var tr smf.Track
	var prev int64
	for _, e := range events {
		deltaMicros := e.timestamp - prev
		deltaTicks := uint32(float64(deltaMicros) * float64(TicksPerBeat) / 1_000_000.0 * compiledBPM / 60.0)
		var msg gomidi.Message
		switch e.kind {
		case activate:
			msg = gomidi.NoteOn(e.channel, e.note, 127)
		case deactivate:
			msg = gomidi.NoteOffVelocity(e.channel, e.note, 127)
		}
		tr.Add(deltaTicks, msg)
		prev = e.timestamp
	}
	tr.Close(0)

	if err := s.Add(tr); err != nil {
		return nil, unmapped, err
	}
	return s, unmapped, nil
}
