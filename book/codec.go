package book

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Binary book stream layout, all integers big endian:
//
//	magic "VBK1"
//	scale name        uint16 length + bytes
//	scale track count uint16, then per track: kind uint8, no uint16,
//	                  note uint16 length + bytes
//	hole count        uint32, then per hole: timestamp int64, length
//	                  int64, track uint16

var bookMagic = [4]byte{'V', 'B', 'K', '1'}

// ErrBadMagic is returned when the stream is not a book file.
var ErrBadMagic = errors.New("not a book stream")

// ReadBookStream parses a virtual book from r.
func ReadBookStream(r io.Reader) (*VirtualBook, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if magic != bookMagic {
		return nil, ErrBadMagic
	}

	vb := &VirtualBook{}

	name, err := readString16(br)
	if err != nil {
		return nil, fmt.Errorf("reading scale name: %w", err)
	}
	vb.Scale.Name = name

	var trackCount uint16
	if err := binary.Read(br, binary.BigEndian, &trackCount); err != nil {
		return nil, fmt.Errorf("reading track count: %w", err)
	}
	for i := 0; i < int(trackCount); i++ {
		var t ScaleTrack
		var kind uint8
		if err := binary.Read(br, binary.BigEndian, &kind); err != nil {
			return nil, fmt.Errorf("reading track %d: %w", i, err)
		}
		t.Kind = TrackKind(kind)
		if err := binary.Read(br, binary.BigEndian, &t.No); err != nil {
			return nil, fmt.Errorf("reading track %d: %w", i, err)
		}
		if t.Note, err = readString16(br); err != nil {
			return nil, fmt.Errorf("reading track %d note: %w", i, err)
		}
		vb.Scale.Tracks = append(vb.Scale.Tracks, t)
	}

	var holeCount uint32
	if err := binary.Read(br, binary.BigEndian, &holeCount); err != nil {
		return nil, fmt.Errorf("reading hole count: %w", err)
	}
	vb.Holes = make([]Hole, 0, holeCount)
	for i := 0; i < int(holeCount); i++ {
		var h Hole
		if err := binary.Read(br, binary.BigEndian, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("reading hole %d: %w", i, err)
		}
		if err := binary.Read(br, binary.BigEndian, &h.Length); err != nil {
			return nil, fmt.Errorf("reading hole %d: %w", i, err)
		}
		if err := binary.Read(br, binary.BigEndian, &h.Track); err != nil {
			return nil, fmt.Errorf("reading hole %d: %w", i, err)
		}
		vb.Holes = append(vb.Holes, h)
	}

	return vb, nil
}

// WriteBookStream serializes a virtual book to w.
func WriteBookStream(w io.Writer, vb *VirtualBook) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.Write(bookMagic[:]); err != nil {
		return err
	}
	if err := writeString16(bw, vb.Scale.Name); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, uint16(len(vb.Scale.Tracks))); err != nil {
		return err
	}
	for _, t := range vb.Scale.Tracks {
		if err := binary.Write(bw, binary.BigEndian, uint8(t.Kind)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.BigEndian, t.No); err != nil {
			return err
		}
		if err := writeString16(bw, t.Note); err != nil {
			return err
		}
	}
	if err := binary.Write(bw, binary.BigEndian, uint32(len(vb.Holes))); err != nil {
		return err
	}
	for _, h := range vb.Holes {
		if err := binary.Write(bw, binary.BigEndian, h.Timestamp); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.BigEndian, h.Length); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.BigEndian, h.Track); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func readString16(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeString16(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}
