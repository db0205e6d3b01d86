/*
DESCRIPTION
  parse.go provides reading of syntax elements of the descriptors specified
  in section 7.2 of ITU-T H.264, with a sticky error for linear field runs.
*/

package h264nal

import "github.com/vidtools/h264nal/bits"

// fieldReader provides methods for reading bool and integer syntax elements
// from a bits.BitReader with a sticky error that may be checked once after a
// series of reads. After the first failed read all subsequent reads return
// zero values.
type fieldReader struct {
	e  error
	br *bits.BitReader
}

func newFieldReader(br *bits.BitReader) *fieldReader {
	return &fieldReader{br: br}
}

// readBits returns the next n bits as a uint32, i.e. an u(n) descriptor.
func (r *fieldReader) readBits(n int) uint32 {
	if r.e != nil {
		return 0
	}
	var b uint32
	b, r.e = r.br.ReadBits(n)
	return b
}

// readFlag returns the next bit as a bool, i.e. an u(1) descriptor.
func (r *fieldReader) readFlag() bool {
	return r.readBits(1) == 1
}

// readUe parses a syntax element of ue(v) descriptor, i.e. an unsigned
// integer Exp-Golomb-coded element as specified in section 9.1.
func (r *fieldReader) readUe() uint32 {
	if r.e != nil {
		return 0
	}
	var v uint32
	v, r.e = r.br.ReadUe()
	return v
}

// readSe parses a syntax element of se(v) descriptor, i.e. a signed integer
// Exp-Golomb-coded element as specified in sections 9.1 and 9.1.1.
func (r *fieldReader) readSe() int32 {
	if r.e != nil {
		return 0
	}
	var v int32
	v, r.e = r.br.ReadSe()
	return v
}

// err returns the first error encountered by the fieldReader, if any.
func (r *fieldReader) err() error {
	return r.e
}
