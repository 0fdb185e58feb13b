// Package book models mechanical-organ virtual books: a scale definition
// and a timed list of holes, plus the conversion tables that map book
// tracks to MIDI notes.
package book

// Hole is a timed activation of one track of a book. Timestamp and
// Length are in microseconds; negative timestamps are tolerated by the
// compiler, which shifts the whole book so the minimum is zero.
type Hole struct {
	Timestamp int64
	Length    int64
	Track     uint16
}

// TrackKind discriminates scale track definitions.
type TrackKind uint8

const (
	TrackUnknown TrackKind = iota
	TrackNote
	TrackDrum
)

// ScaleTrack is a row definition of the card.
type ScaleTrack struct {
	Kind TrackKind
	No   uint16
	// Note name for TrackNote rows, e.g. "A4", "C#2".
	Note string
}

// Scale describes the card layout of a book.
type Scale struct {
	Name   string
	Tracks []ScaleTrack
}

// VirtualBook is a parsed book file.
type VirtualBook struct {
	Scale Scale
	Holes []Hole
}

// Duration returns the end of the last hole, in microseconds.
func (vb *VirtualBook) Duration() int64 {
	var max int64
	for _, h := range vb.Holes {
		if end := h.Timestamp + h.Length; end > max {
			max = end
		}
	}
	return max
}
