package book

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBook() *VirtualBook {
	return &VirtualBook{
		Scale: Scale{
			Name: "27 keys",
			Tracks: []ScaleTrack{
				{Kind: TrackNote, No: 0, Note: "C4"},
				{Kind: TrackNote, No: 1, Note: "D4"},
				{Kind: TrackDrum, No: 2},
			},
		},
		Holes: []Hole{
			{Timestamp: 0, Length: 100_000, Track: 0},
			{Timestamp: 250_000, Length: 50_000, Track: 1},
			{Timestamp: 1_000_000, Length: 10_000, Track: 2},
		},
	}
}

func TestBookStreamRoundTrip(t *testing.T) {
	vb := sampleBook()

	var buf bytes.Buffer
	require.NoError(t, WriteBookStream(&buf, vb))

	got, err := ReadBookStream(&buf)
	require.NoError(t, err)
	assert.Equal(t, vb.Scale, got.Scale)
	assert.Equal(t, vb.Holes, got.Holes)
}

func TestReadBookStreamBadMagic(t *testing.T) {
	_, err := ReadBookStream(bytes.NewReader([]byte("MThd\x00\x00\x00\x06")))
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestBookDuration(t *testing.T) {
	vb := sampleBook()
	assert.Equal(t, int64(1_010_000), vb.Duration())
	assert.Equal(t, int64(0), (&VirtualBook{}).Duration())
}

func TestConversionYAMLRoundTrip(t *testing.T) {
	mod := ModifierMechanicalRead
	conv := &Conversion{
		Name:             "27 keys standard",
		GlobalParameters: &ConversionParameters{ReadSize: 1.5},
		Mapping: map[uint16]Mapping{
			0: {MidiChannel: 0, Note: 48, Modifier: &mod},
			1: {MidiChannel: 0, Note: 50},
			2: {MidiChannel: 9, Note: 45},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteConversion(&buf, conv))

	got, err := ReadConversion(&buf)
	require.NoError(t, err)
	assert.Equal(t, conv, got)
}

func TestParseNote(t *testing.T) {
	cases := []struct {
		in   string
		want uint8
	}{
		{"C-1", 0},
		{"C0", 12},
		{"C#0", 13},
		{"A4", 69},
		{"A#4", 70},
		{"C4", 60},
		{"F#9", 126},
		{"G9", 127},
	}
	for _, c := range cases {
		got, err := ParseNote(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	for _, bad := range []string{"", "H2", "C", "G#9", "C-3"} {
		_, err := ParseNote(bad)
		assert.Error(t, err, bad)
	}
}

func TestConversionFromScale(t *testing.T) {
	scale := &Scale{
		Name: "auto",
		Tracks: []ScaleTrack{
			{Kind: TrackNote, No: 3, Note: "A4"},
			{Kind: TrackDrum, No: 7},
			{Kind: TrackUnknown, No: 9},
		},
	}

	conv, err := ConversionFromScale(scale)
	require.NoError(t, err)

	// notes transpose one octave down on channel 0
	assert.Equal(t, uint8(0), conv.Mapping[3].MidiChannel)
	assert.Equal(t, uint8(57), conv.Mapping[3].Note)

	// drums land on the percussion channel
	assert.Equal(t, uint8(9), conv.Mapping[7].MidiChannel)
	assert.Equal(t, uint8(45), conv.Mapping[7].Note)

	// unknown tracks get no mapping
	_, ok := conv.Mapping[9]
	assert.False(t, ok)
}

func TestConversionFromScaleRejectsLowNotes(t *testing.T) {
	_, err := ConversionFromScale(&Scale{
		Tracks: []ScaleTrack{{Kind: TrackNote, No: 0, Note: "C-1"}},
	})
	assert.Error(t, err)
}

func identityConversion(tracks ...uint16) *Conversion {
	mapping := map[uint16]Mapping{}
	for _, tr := range tracks {
		mapping[tr] = Mapping{MidiChannel: 0, Note: uint8(60 + tr)}
	}
	return &Conversion{Name: "test", Mapping: mapping}
}

func TestCompileDeltaTicks(t *testing.T) {
	// one second of book time is 20000 ticks at the fixed resolution
	vb := &VirtualBook{
		Holes: []Hole{{Timestamp: 0, Length: 1_000_000, Track: 0}},
	}

	s, unmapped, err := Compile(vb, identityConversion(0))
	require.NoError(t, err)
	assert.Equal(t, 0, unmapped)
	require.Len(t, s.Tracks, 1)

	tr := s.Tracks[0]
	// NoteOn, NoteOff, end of track
	require.Len(t, tr, 3)
	assert.Equal(t, uint32(0), tr[0].Delta)
	assert.Equal(t, uint32(20_000), tr[1].Delta)

	var ch, key, vel uint8
	require.True(t, tr[0].Message.GetNoteStart(&ch, &key, &vel))
	assert.Equal(t, uint8(60), key)
	assert.Equal(t, uint8(127), vel)
	require.True(t, tr[1].Message.GetNoteEnd(&ch, &key))
	assert.Equal(t, uint8(60), key)
}

func TestCompileShiftsNegativeTimestamps(t *testing.T) {
	vb := &VirtualBook{
		Holes: []Hole{
			{Timestamp: -500_000, Length: 100_000, Track: 0},
			{Timestamp: 0, Length: 100_000, Track: 1},
		},
	}

	s, _, err := Compile(vb, identityConversion(0, 1))
	require.NoError(t, err)

	tr := s.Tracks[0]
	// earliest hole starts at tick zero after the shift
	assert.Equal(t, uint32(0), tr[0].Delta)

	// the second hole begins 500ms after the first, 10000 ticks
	var at uint32
	var deltas []uint32
	for _, ev := range tr {
		at += ev.Delta
		deltas = append(deltas, at)
	}
	assert.Contains(t, deltas, uint32(10_000))
}

func TestCompileDropsZeroLengthHoles(t *testing.T) {
	vb := &VirtualBook{
		Holes: []Hole{
			{Timestamp: 0, Length: 0, Track: 0},
			{Timestamp: 0, Length: -5, Track: 0},
		},
	}
	_, _, err := Compile(vb, identityConversion(0))
	assert.ErrorIs(t, err, ErrEmptyStream)
}

func TestCompileCountsUnmappedTracks(t *testing.T) {
	vb := &VirtualBook{
		Holes: []Hole{
			{Timestamp: 0, Length: 100_000, Track: 0},
			{Timestamp: 0, Length: 100_000, Track: 42},
			{Timestamp: 50_000, Length: 100_000, Track: 43},
		},
	}

	s, unmapped, err := Compile(vb, identityConversion(0))
	require.NoError(t, err)
	assert.Equal(t, 2, unmapped)

	// only the mapped hole produced events
	require.Len(t, s.Tracks, 1)
	assert.Len(t, s.Tracks[0], 3)
}

func TestCompileEmptyBook(t *testing.T) {
	_, _, err := Compile(&VirtualBook{}, identityConversion())
	assert.ErrorIs(t, err, ErrEmptyStream)
}
