// Package midiport wraps the OS MIDI output sink. A platform driver
// (rtmidi) is registered by the binaries; the library and its tests only
// depend on the Output interface.
package midiport

import (
	"errors"
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"bookplayer/debug"
)

// ErrDeviceUnavailable is returned when no MIDI output can be opened.
var ErrDeviceUnavailable = errors.New("midi output device unavailable")

// Output is a raw byte sink to a MIDI device. The scheduler owns the
// output exclusively while a run is active.
type Output interface {
	Send(data []byte) error
	Close() error
	String() string
}

// DeviceInfo describes an available output port.
type DeviceInfo struct {
	No    int
	Label string
}

// List returns the available MIDI output ports.
func List() []DeviceInfo {
	out := []DeviceInfo{}
	for i, p := range gomidi.GetOutPorts() {
		out = append(out, DeviceInfo{No: i, Label: p.String()})
	}
	return out
}

type port struct {
	out drivers.Out
}

func (p *port) Send(data []byte) error { return p.out.Send(data) }
func (p *port) Close() error           { return p.out.Close() }
func (p *port) String() string         { return p.out.String() }

// OpenByIndex opens the n-th output port.
func OpenByIndex(n int) (Output, error) {
	ports := gomidi.GetOutPorts()
	if len(ports) == 0 {
		return nil, fmt.Errorf("no MIDI output device detected: %w", ErrDeviceUnavailable)
	}
	if n < 0 || n >= len(ports) {
		return nil, fmt.Errorf("only %d MIDI devices detected: %w", len(ports), ErrDeviceUnavailable)
	}
	if err := ports[n].Open(); err != nil {
		return nil, fmt.Errorf("opening %q: %w", ports[n].String(), ErrDeviceUnavailable)
	}
	return &port{out: ports[n]}, nil
}

// OpenByName opens the port whose name matches, or the first port when
// name is empty.
func OpenByName(name string) (Output, error) {
	ports := gomidi.GetOutPorts()
	if len(ports) == 0 {
		return nil, fmt.Errorf("no MIDI output device detected: %w", ErrDeviceUnavailable)
	}
	if name == "" {
		return OpenByIndex(0)
	}
	for i, p := range ports {
		if p.String() == name {
			return OpenByIndex(i)
		}
	}
	return nil, fmt.Errorf("device %q not found: %w", name, ErrDeviceUnavailable)
}

type discard struct{}

func (discard) Send([]byte) error { return nil }
func (discard) Close() error      { return nil }
func (discard) String() string    { return "no device" }

// Discard returns an output that drops everything. The player runs
// against it when no real device could be opened.
func Discard() Output { return discard{} }

// AllNotesOff sends a NoteOff for every key on all 16 channels. The bulk
// form defeats stuck notes regardless of how they were triggered. Send
// failures are logged and skipped so the sweep always completes.
func AllNotesOff(out Output) {
	for ch := uint8(0); ch < 16; ch++ {
		for key := uint8(0); key < 128; key++ {
			msg := gomidi.NoteOff(ch, key)
			if err := out.Send(msg.Bytes()); err != nil {
				debug.Warnf("midiport", "fail to send stop note ch=%d key=%d: %v", ch, key, err)
			}
		}
	}
}

// Silence sends the all-notes-off and all-sound-off controllers on every
// channel. Cheaper than AllNotesOff but not honored by all devices.
func Silence(out Output) {
	for ch := uint8(0); ch < 16; ch++ {
		if err := out.Send(gomidi.ControlChange(ch, 123, 0).Bytes()); err != nil {
			debug.Warnf("midiport", "fail to send all-notes-off controller: %v", err)
		}
		if err := out.Send(gomidi.ControlChange(ch, 120, 0).Bytes()); err != nil {
			debug.Warnf("midiport", "fail to send all-sound-off controller: %v", err)
		}
	}
}
