/*
DESCRIPTION
  parser.go provides the NAL unit framer: start code recognition, byte-stream
  framing with format auto-detection, and payload bounding for the
  payload-specific decoders.
*/

// Package h264nal parses H.264/AVC network abstraction layer bitstreams into
// structured records of their syntax elements. A Parser frames NAL units in
// an Annex B byte stream and decodes sequence parameter sets, picture
// parameter sets and slice headers down to the bit level.
package h264nal

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Format identifies the NAL unit framing of a stream.
type Format int

const (
	FormatUnknown Format = iota
	FormatByteStream
	FormatAVC
)

// String implements fmt.Stringer.
func (f Format) String() string {
	switch f {
	case FormatByteStream:
		return "byte-stream"
	case FormatAVC:
		return "AVC"
	default:
		return "unknown"
	}
}

// Parser frames and decodes NAL units from a single in-memory buffer. The
// framing format starts unknown and is locked by the first successfully
// framed unit. SPS and PPS records decoded by the parser are retained for
// resolution by later slice headers.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	data   []byte
	format Format
	store  paramSetStore
	log    zerolog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for debug traces of framing and payload
// decoding. The default discards all output.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Parser) { p.log = l }
}

// NewParser returns a Parser over data. The parser holds data for its whole
// lifetime; the caller must not mutate it.
func NewParser(data []byte, opts ...Option) *Parser {
	p := &Parser{
		data:   data,
		format: FormatUnknown,
		store:  newParamSetStore(),
		log:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Format returns the framing format locked by the first successful frame,
// or FormatUnknown if no unit has been framed yet.
func (p *Parser) Format() Format {
	return p.format
}

// parseStartCode returns the length of the start code at offset, either 3
// for 00 00 01 or 4 for 00 00 00 01.
func (p *Parser) parseStartCode(offset int) (int, error) {
	if len(p.data) < offset+3 {
		return 0, errors.Wrap(ErrNotEnoughBytes, "start code")
	}
	if p.data[offset] != 0x00 || p.data[offset+1] != 0x00 {
		return 0, errors.Wrapf(ErrStartCode, "at offset %d", offset)
	}
	if p.data[offset+2] == 0x01 {
		return 3, nil
	}
	if p.data[offset+2] != 0x00 {
		return 0, errors.Wrapf(ErrStartCode, "at offset %d", offset)
	}
	if len(p.data) < offset+4 {
		return 0, errors.Wrap(ErrNotEnoughBytes, "start code")
	}
	if p.data[offset+2] == 0x00 && p.data[offset+3] == 0x01 {
		return 4, nil
	}
	return 0, errors.Wrapf(ErrStartCode, "at offset %d", offset)
}

// parseByteStream frames the Annex B byte-stream NAL unit whose start code
// begins at scOffset.
func (p *Parser) parseByteStream(scOffset int) (NALUnit, error) {
	scLen, err := p.parseStartCode(scOffset)
	if err != nil {
		return NALUnit{}, err
	}
	dataOffset := scOffset + scLen

	if dataOffset >= len(p.data) {
		return NALUnit{}, errors.Wrap(ErrNotEnoughBytes, "NAL header")
	}
	b := p.data[dataOffset]
	if b&0x80 != 0 {
		return NALUnit{}, errors.Wrap(ErrParse, "forbidden_zero_bit set in NAL header")
	}
	refIdc := (b & 0x60) >> 5
	typeNum := b & 0x1f

	// The unit runs to the next start code, or to the end of the buffer. A
	// match needs at least 3 bytes.
	size := len(p.data) - scOffset
	for i := dataOffset + 1; len(p.data)-i >= 3; i++ {
		if _, err := p.parseStartCode(i); err == nil {
			size = i - scOffset
			break
		}
	}

	u := newNALUnit(scOffset, dataOffset, size, refIdc, typeNum)
	p.log.Debug().
		Int("sc_offset", u.SCOffset).
		Int("size", u.Size).
		Uint8("nal_unit_type", u.TypeNum).
		Stringer("type", u.Type).
		Msg("framed NAL unit")
	return u, nil
}

// parseAVC would frame a length-prefixed AVC NAL unit. Only the prefix size
// check is performed; the AVC walk itself is outside the parser's scope.
func (p *Parser) parseAVC(offset int) (NALUnit, error) {
	if len(p.data) < offset+4 {
		return NALUnit{}, errors.Wrap(ErrNotEnoughBytes, "AVC length prefix")
	}
	return NALUnit{}, errors.Wrap(ErrUnknownFormat, "AVC framing not supported")
}

// ParseNALUnit frames the next NAL unit starting at offset. On the first
// call the framing format is detected, byte-stream first, and locked for
// the life of the parser. The caller advances by the returned unit's Size
// to frame the following unit.
func (p *Parser) ParseNALUnit(offset int) (NALUnit, error) {
	switch p.format {
	case FormatByteStream:
		return p.parseByteStream(offset)
	case FormatAVC:
		return p.parseAVC(offset)
	default:
		u, err := p.parseByteStream(offset)
		if err == nil {
			p.format = FormatByteStream
			return u, nil
		}
		u, err = p.parseAVC(offset)
		if err == nil {
			p.format = FormatAVC
			return u, nil
		}
		return NALUnit{}, errors.Wrapf(ErrUnknownFormat, "at offset %d", offset)
	}
}

// payload bounds the NAL payload that begins one byte past the NAL header
// at dataOffset, ending at the next start code or the end of the buffer.
func (p *Parser) payload(dataOffset int) ([]byte, error) {
	if dataOffset+1 >= len(p.data) {
		return nil, errors.Wrap(ErrNotEnoughBytes, "NAL payload")
	}
	end := len(p.data)
	for i := dataOffset + 1; end-i >= 3; i++ {
		if _, err := p.parseStartCode(i); err == nil {
			end = i
			break
		}
	}
	return p.data[dataOffset+1 : end], nil
}
