/*
DESCRIPTION
  nalunit.go provides the framed NAL unit record and its classification.
*/

package h264nal

import "fmt"

// NAL unit type codes from table 7-1 of ITU-T H.264 that the parser
// dispatches on. The full table is preserved in NALUnit.TypeNum.
const (
	NALTypeNonIDR = 1
	NALTypeIDR    = 5
	NALTypeSPS    = 7
	NALTypePPS    = 8
)

// UnitType is the categorical classification of a NAL unit.
type UnitType int

const (
	UnitTypeUnknown UnitType = iota
	UnitTypeSPS
	UnitTypePPS
	UnitTypeIDR
	UnitTypeP
)

// String implements fmt.Stringer.
func (t UnitType) String() string {
	switch t {
	case UnitTypeSPS:
		return "SPS"
	case UnitTypePPS:
		return "PPS"
	case UnitTypeIDR:
		return "IDR"
	case UnitTypeP:
		return "P"
	default:
		return "unknown"
	}
}

// NALUnit describes one framed network abstraction layer unit. Offsets are
// relative to the start of the parser's buffer; Size spans from SCOffset to
// the start of the next start code, or to the end of the buffer. A NALUnit
// is immutable once produced.
type NALUnit struct {
	// SCOffset and DataOffset are the offsets of the start code and of the
	// NAL header byte; DataOffset - SCOffset is the start code length.
	SCOffset   int
	DataOffset int
	Size       int

	// nal_ref_idc and nal_unit_type from the NAL header (section 7.4.1).
	RefIdc  uint8
	TypeNum uint8

	Type       UnitType
	IDRPicFlag bool
}

// newNALUnit builds a NALUnit record, classifying typeNum per table 7-1.
func newNALUnit(scOffset, dataOffset, size int, refIdc, typeNum uint8) NALUnit {
	var t UnitType
	switch typeNum {
	case NALTypeIDR:
		t = UnitTypeIDR
	case NALTypeSPS:
		t = UnitTypeSPS
	case NALTypePPS:
		t = UnitTypePPS
	case NALTypeNonIDR:
		t = UnitTypeP
	default:
		t = UnitTypeUnknown
	}
	return NALUnit{
		SCOffset:   scOffset,
		DataOffset: dataOffset,
		Size:       size,
		RefIdc:     refIdc,
		TypeNum:    typeNum,
		Type:       t,
		IDRPicFlag: t == UnitTypeIDR,
	}
}

// String implements fmt.Stringer.
func (u NALUnit) String() string {
	return fmt.Sprintf("NAL unit type %d (%s) ref_idc %d at %d, %d bytes",
		u.TypeNum, u.Type, u.RefIdc, u.SCOffset, u.Size)
}
