package book

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"bookplayer/debug"
)

// Modifier tunes how a mapped track is rendered.
type Modifier string

const (
	ModifierMechanicalRead           Modifier = "MECHANICAL_READ"
	ModifierPercussionTriggeredAtEnd Modifier = "PERCUSSION_TRIGGERED_AT_END"
)

// Mapping maps one book track to a MIDI channel and note.
type Mapping struct {
	MidiChannel uint8     `yaml:"midi_channel"`
	Note        uint8     `yaml:"note"`
	Modifier    *Modifier `yaml:"modifier,omitempty"`
}

// ConversionParameters carries global conversion tuning.
type ConversionParameters struct {
	ReadSize float64 `yaml:"read_size"`
}

// Conversion maps book tracks to MIDI. A track with no entry is
// silently dropped during compilation.
type Conversion struct {
	Name             string                `yaml:"name"`
	GlobalParameters *ConversionParameters `yaml:"global_parameters,omitempty"`
	Mapping          map[uint16]Mapping    `yaml:"mapping"`
}

// ReadConversion parses a conversion YAML stream.
func ReadConversion(r io.Reader) (*Conversion, error) {
	var c Conversion
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decoding conversion: %w", err)
	}
	return &c, nil
}

// WriteConversion serializes a conversion as YAML.
func WriteConversion(w io.Writer, c *Conversion) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(c)
}

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// ParseNote parses a note name like "A4" or "C#2" into a MIDI key.
// Octave -1 maps C to 0, so "A4" is 69.
func ParseNote(s string) (uint8, error) {
	if s == "" {
		return 0, errors.New("empty note name")
	}
	// sharps first so "C#" is not consumed as "C"
	for i := len(noteNames) - 1; i >= 0; i-- {
		name := noteNames[i]
		if strings.HasPrefix(s, name) {
			octave, err := strconv.Atoi(s[len(name):])
			if err != nil {
				return 0, fmt.Errorf("note %q: %w", s, err)
			}
			v := 12*(octave+1) + i
			if v < 0 || v > 127 {
				return 0, fmt.Errorf("note %q out of midi range", s)
			}
			return uint8(v), nil
		}
	}
	return 0, fmt.Errorf("note %q not found", s)
}

// ConversionFromScale derives an automatic conversion from a scale
// definition: note tracks land on channel 0 an octave down, drum tracks
// on the percussion channel.
func ConversionFromScale(scale *Scale) (*Conversion, error) {
	mod := ModifierMechanicalRead
	mapping := map[uint16]Mapping{}
	for _, t := range scale.Tracks {
		switch t.Kind {
		case TrackNote:
			key, err := ParseNote(t.Note)
			if err != nil {
				return nil, err
			}
			if key < 12 {
				return nil, fmt.Errorf("note %q too low to transpose down", t.Note)
			}
			mapping[t.No] = Mapping{MidiChannel: 0, Note: key - 12, Modifier: &mod}
		case TrackDrum:
			mapping[t.No] = Mapping{MidiChannel: 9, Note: 45, Modifier: &mod}
		}
	}
	return &Conversion{Name: "automatic conversion", Mapping: mapping}, nil
}

// ResolveConversion finds the conversion for a book: a "<scale>.yml"
// file next to dir wins, otherwise one is derived from the scale.
func ResolveConversion(vb *VirtualBook, dir string) (*Conversion, error) {
	path := filepath.Join(dir, vb.Scale.Name+".yml")
	f, err := os.Open(path)
	if err != nil {
		debug.Infof("book", "no conversion file at %s, deriving from scale", path)
		return ConversionFromScale(&vb.Scale)
	}
	defer f.Close()
	return ReadConversion(f)
}
