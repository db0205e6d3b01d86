package h264nal

// Slice types from table 7-6. A slice_type of n and n+5 describe the same
// coding type, so classification is by slice_type mod 5.
const (
	sliceTypeP = iota
	sliceTypeB
	sliceTypeI
	sliceTypeSP
	sliceTypeSI
)

// Chroma formats from table 6-1.
const (
	chromaMonochrome = iota
	chroma420
	chroma422
	chroma444
)

// sliceTypeName maps slice_type mod 5 to its table 7-6 name.
var sliceTypeName = map[uint32]string{
	sliceTypeP:  "P",
	sliceTypeB:  "B",
	sliceTypeI:  "I",
	sliceTypeSP: "SP",
	sliceTypeSI: "SI",
}

func isPSlice(sliceType uint32) bool  { return sliceType%5 == sliceTypeP }
func isBSlice(sliceType uint32) bool  { return sliceType%5 == sliceTypeB }
func isISlice(sliceType uint32) bool  { return sliceType%5 == sliceTypeI }
func isSPSlice(sliceType uint32) bool { return sliceType%5 == sliceTypeSP }
func isSISlice(sliceType uint32) bool { return sliceType%5 == sliceTypeSI }

// ceilLog2 returns the ceiling of the base-2 logarithm of v, with
// ceilLog2(0) = ceilLog2(1) = 0.
func ceilLog2(v uint32) int {
	if v <= 1 {
		return 0
	}
	n := 0
	for x := v - 1; x > 0; x >>= 1 {
		n++
	}
	return n
}

func isInList(l []uint8, term uint8) bool {
	for _, m := range l {
		if m == term {
			return true
		}
	}
	return false
}
