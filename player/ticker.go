package player

import "time"

// Default tempo for files without a tempo signature: 120 BPM, 4/4.
const defaultTempoMicros uint32 = 60 * 1_000_000 / 120

// DefaultTicksPerBeat applies when a file header carries no timing.
const DefaultTicksPerBeat uint16 = 48

// Ticker converts delta ticks into wall-clock durations under the
// current tempo. Mutated only by the thread driving the stream.
type Ticker struct {
	ticksPerBeat  uint16
	microsPerBeat uint32
}

// NewTicker returns a ticker at the default 120 BPM tempo.
func NewTicker(ticksPerBeat uint16) Ticker {
	if ticksPerBeat == 0 {
		ticksPerBeat = DefaultTicksPerBeat
	}
	return Ticker{ticksPerBeat: ticksPerBeat, microsPerBeat: defaultTempoMicros}
}

// SetTempo installs a new tempo in microseconds per beat. It persists
// until the next tempo event.
func (t *Ticker) SetTempo(microsPerBeat uint32) {
	if microsPerBeat == 0 {
		return
	}
	t.microsPerBeat = microsPerBeat
}

// TickDuration is the wall-clock length of a single tick.
func (t *Ticker) TickDuration() time.Duration {
	micros := float64(t.microsPerBeat) / float64(t.ticksPerBeat)
	return time.Duration(micros * float64(time.Microsecond))
}

// SleepDuration is the wall-clock length of n ticks.
func (t *Ticker) SleepDuration(n uint32) time.Duration {
	micros := float64(t.microsPerBeat) * float64(n) / float64(t.ticksPerBeat)
	return time.Duration(micros * float64(time.Microsecond))
}
