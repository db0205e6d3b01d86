/*
DESCRIPTION
  parser_test.go provides testing for NAL unit framing: start code
  recognition, format detection and unit sizing.
*/

package h264nal

import (
	"testing"

	"github.com/pkg/errors"
)

func TestParseNALUnitThreeByteStartCode(t *testing.T) {
	buf := []byte{
		0x00, 0x00, 0x01, 0x67, 0x42, 0x00, 0x1f, // SPS unit, 7 bytes.
		0x00, 0x00, 0x01, 0x68, 0xce, 0x3c, 0x80, // PPS unit, 7 bytes.
	}
	p := NewParser(buf)

	u, err := p.ParseNALUnit(0)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if u.SCOffset != 0 || u.DataOffset != 3 {
		t.Errorf("unexpected offsets: sc %d data %d", u.SCOffset, u.DataOffset)
	}
	if u.RefIdc != 3 || u.TypeNum != NALTypeSPS || u.Type != UnitTypeSPS {
		t.Errorf("unexpected header fields: ref_idc %d type %d (%v)", u.RefIdc, u.TypeNum, u.Type)
	}
	if u.Size != 7 {
		t.Errorf("unexpected size\nGot: %d\nWant: 7", u.Size)
	}
	if p.Format() != FormatByteStream {
		t.Errorf("format not locked to byte-stream, got %v", p.Format())
	}

	u, err = p.ParseNALUnit(u.Size)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if u.SCOffset != 7 || u.TypeNum != NALTypePPS || u.Size != 7 {
		t.Errorf("unexpected second unit: %v", u)
	}
}

func TestParseNALUnitFourByteStartCode(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x80}
	p := NewParser(buf)

	u, err := p.ParseNALUnit(0)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if u.DataOffset-u.SCOffset != 4 {
		t.Errorf("unexpected start code length %d", u.DataOffset-u.SCOffset)
	}
	if u.TypeNum != NALTypeIDR || u.Type != UnitTypeIDR || !u.IDRPicFlag {
		t.Errorf("expected IDR classification, got type %d (%v) idr %v", u.TypeNum, u.Type, u.IDRPicFlag)
	}
	if u.Size != len(buf) {
		t.Errorf("unexpected size\nGot: %d\nWant: %d", u.Size, len(buf))
	}
}

// TestParseNALUnitHeaderByte checks the S6 style classification of a 0x65
// NAL header byte.
func TestParseNALUnitHeaderByte(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x01, 0x65, 0x00}
	u, err := NewParser(buf).ParseNALUnit(0)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if u.RefIdc != 3 || u.TypeNum != 5 || u.Type != UnitTypeIDR || !u.IDRPicFlag {
		t.Errorf("unexpected classification: %v", u)
	}
}

// TestParseNALUnitWalk checks that sizes of a concatenation of units sum to
// the buffer length and that advancing by size never re-yields a unit.
func TestParseNALUnitWalk(t *testing.T) {
	buf := []byte{
		0x00, 0x00, 0x01, 0x67, 0x42, 0x00, 0x1f, 0xe5,
		0x00, 0x00, 0x00, 0x01, 0x68, 0xce, 0x3c, 0x80,
		0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x21, 0xa0,
		0x00, 0x00, 0x01, 0x41, 0x9a, 0x22,
	}
	p := NewParser(buf)

	var (
		total   int
		offsets []int
	)
	for offset := 0; ; {
		u, err := p.ParseNALUnit(offset)
		if err != nil {
			break
		}
		if u.Size <= 0 {
			t.Fatalf("non-positive unit size %d at offset %d", u.Size, offset)
		}
		offsets = append(offsets, u.SCOffset)
		total += u.Size
		offset += u.Size
	}

	if total != len(buf) {
		t.Errorf("sizes do not sum to buffer length\nGot: %d\nWant: %d", total, len(buf))
	}
	if len(offsets) != 4 {
		t.Fatalf("unexpected unit count\nGot: %d\nWant: 4", len(offsets))
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] <= offsets[i-1] {
			t.Errorf("unit offsets not monotone: %v", offsets)
		}
	}
}

func TestParseNALUnitForbiddenBit(t *testing.T) {
	// Locked to byte-stream first so the framing error is not masked by
	// format detection.
	buf := []byte{
		0x00, 0x00, 0x01, 0x67, 0x42,
		0x00, 0x00, 0x01, 0x80, 0x00,
	}
	p := NewParser(buf)
	u, err := p.ParseNALUnit(0)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	_, err = p.ParseNALUnit(u.Size)
	if errors.Cause(err) != ErrParse {
		t.Errorf("expected ErrParse for set forbidden_zero_bit, got %v", err)
	}
}

func TestParseNALUnitUnknownFormat(t *testing.T) {
	p := NewParser([]byte{0xab, 0xcd, 0xef, 0x01, 0x02})
	_, err := p.ParseNALUnit(0)
	if errors.Cause(err) != ErrUnknownFormat {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
	if p.Format() != FormatUnknown {
		t.Errorf("format should remain unknown, got %v", p.Format())
	}
}

func TestParseNALUnitExhausted(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x01, 0x61, 0x00}
	p := NewParser(buf)
	u, err := p.ParseNALUnit(0)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	// Once the format is locked, running off the end is a framing error in
	// the locked path, not a format fall-back.
	_, err = p.ParseNALUnit(u.Size)
	if errors.Cause(err) != ErrNotEnoughBytes {
		t.Errorf("expected ErrNotEnoughBytes at end of buffer, got %v", err)
	}
}

func TestParseStartCode(t *testing.T) {
	tests := []struct {
		in      []byte
		offset  int
		want    int
		wantErr error
	}{
		{[]byte{0x00, 0x00, 0x01}, 0, 3, nil},
		{[]byte{0x00, 0x00, 0x00, 0x01}, 0, 4, nil},
		{[]byte{0xff, 0x00, 0x00, 0x01}, 1, 3, nil},
		{[]byte{0x00, 0x01, 0x00}, 0, 0, ErrStartCode},
		{[]byte{0x00, 0x00, 0x02}, 0, 0, ErrStartCode},
		{[]byte{0x00, 0x00, 0x00, 0x02}, 0, 0, ErrStartCode},
		{[]byte{0x00, 0x00}, 0, 0, ErrNotEnoughBytes},
		{[]byte{0x00, 0x00, 0x00}, 0, 0, ErrNotEnoughBytes},
	}
	for i, test := range tests {
		p := NewParser(test.in)
		got, err := p.parseStartCode(test.offset)
		if test.wantErr != nil {
			if errors.Cause(err) != test.wantErr {
				t.Errorf("unexpected error for test %d\nGot: %v\nWant: %v", i, err, test.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("did not expect error: %v for test %d", err, i)
		}
		if got != test.want {
			t.Errorf("unexpected length for test %d\nGot: %d\nWant: %d", i, got, test.want)
		}
	}
}
