/*
DESCRIPTION
  slice.go provides parsing of slice headers per section 7.3.3, including the
  ref_pic_list_modification, pred_weight_table and dec_ref_pic_marking
  sub-structures.
*/

package h264nal

import (
	"github.com/pkg/errors"

	"github.com/vidtools/h264nal/bits"
)

// RefPicListModification holds the elements of a ref_pic_list_modification
// syntax structure (section 7.3.3.1). Index 0 is reference picture list 0,
// index 1 list 1. The inner slices are index-aligned: entry i of each holds
// the i-th modification, with zero in the fields the i-th
// modification_of_pic_nums_idc does not select.
type RefPicListModification struct {
	RefPicListModificationFlag [2]bool
	ModificationOfPicNums      [2][]uint32
	AbsDiffPicNumMinus1        [2][]uint32
	LongTermPicNum             [2][]uint32
}

// parseRefPicListModification parses a ref_pic_list_modification following
// the syntax structure of section 7.3.3.1.
func parseRefPicListModification(r *fieldReader, sliceType uint32) (*RefPicListModification, error) {
	m := &RefPicListModification{}

	lists := []int{}
	if !isISlice(sliceType) && !isSISlice(sliceType) {
		lists = append(lists, 0)
	}
	if isBSlice(sliceType) {
		lists = append(lists, 1)
	}

	for _, l := range lists {
		m.RefPicListModificationFlag[l] = r.readFlag()
		if !m.RefPicListModificationFlag[l] {
			continue
		}
		for {
			idc := r.readUe()
			if err := r.err(); err != nil {
				return nil, wrapBits(err, "modification_of_pic_nums_idc")
			}
			if idc > 3 {
				return nil, errors.Wrapf(ErrParse, "modification_of_pic_nums_idc %d out of range", idc)
			}
			m.ModificationOfPicNums[l] = append(m.ModificationOfPicNums[l], idc)
			var absDiff, longTerm uint32
			switch idc {
			case 0, 1:
				absDiff = r.readUe()
			case 2:
				longTerm = r.readUe()
			}
			m.AbsDiffPicNumMinus1[l] = append(m.AbsDiffPicNumMinus1[l], absDiff)
			m.LongTermPicNum[l] = append(m.LongTermPicNum[l], longTerm)
			if idc == 3 {
				break
			}
		}
	}
	if err := r.err(); err != nil {
		return nil, wrapBits(err, "ref_pic_list_modification")
	}
	return m, nil
}

// PredWeightTable holds the elements of a pred_weight_table syntax structure
// (section 7.3.3.2). Outer index 0 is reference picture list 0, index 1
// list 1; inner slices are indexed by reference index, with zeros where the
// per-entry weight flag was not set.
type PredWeightTable struct {
	LumaLog2WeightDenom   uint32
	ChromaLog2WeightDenom uint32
	LumaWeightFlag        [2][]bool
	LumaWeight            [2][]int32
	LumaOffset            [2][]int32
	ChromaWeightFlag      [2][]bool
	ChromaWeight          [2][][2]int32
	ChromaOffset          [2][][2]int32
}

// parsePredWeightTable parses a pred_weight_table following the syntax
// structure of section 7.3.3.2.
func parsePredWeightTable(r *fieldReader, h *SliceHeader, chromaArrayType uint32) (*PredWeightTable, error) {
	p := &PredWeightTable{}

	p.LumaLog2WeightDenom = r.readUe()
	if chromaArrayType != 0 {
		p.ChromaLog2WeightDenom = r.readUe()
	}

	nActive := [2]uint32{h.NumRefIdxL0ActiveMinus1, h.NumRefIdxL1ActiveMinus1}
	lists := []int{0}
	if isBSlice(h.SliceType) {
		lists = append(lists, 1)
	}
	for _, l := range lists {
		for i := uint32(0); i <= nActive[l]; i++ {
			flag := r.readFlag()
			p.LumaWeightFlag[l] = append(p.LumaWeightFlag[l], flag)
			var w, o int32
			if flag {
				w = r.readSe()
				o = r.readSe()
			}
			p.LumaWeight[l] = append(p.LumaWeight[l], w)
			p.LumaOffset[l] = append(p.LumaOffset[l], o)

			if chromaArrayType == 0 {
				continue
			}
			flag = r.readFlag()
			p.ChromaWeightFlag[l] = append(p.ChromaWeightFlag[l], flag)
			var cw, co [2]int32
			if flag {
				for j := 0; j < 2; j++ {
					cw[j] = r.readSe()
					co[j] = r.readSe()
				}
			}
			p.ChromaWeight[l] = append(p.ChromaWeight[l], cw)
			p.ChromaOffset[l] = append(p.ChromaOffset[l], co)
		}
	}
	if err := r.err(); err != nil {
		return nil, wrapBits(err, "pred_weight_table")
	}
	return p, nil
}

// MMCOOp is one adaptive memory management control operation of a
// dec_ref_pic_marking structure, with the arguments selected by its
// memory_management_control_operation value.
type MMCOOp struct {
	MemoryManagementControlOperation uint32
	DifferenceOfPicNumsMinus1        uint32
	LongTermPicNum                   uint32
	LongTermFrameIdx                 uint32
	MaxLongTermFrameIdxPlus1         uint32
}

// DecRefPicMarking holds the elements of a dec_ref_pic_marking syntax
// structure (section 7.3.3.3).
type DecRefPicMarking struct {
	NoOutputOfPriorPicsFlag       bool
	LongTermReferenceFlag         bool
	AdaptiveRefPicMarkingModeFlag bool
	Ops                           []MMCOOp
}

// parseDecRefPicMarking parses a dec_ref_pic_marking following the syntax
// structure of section 7.3.3.3. The operation loop terminates on a
// memory_management_control_operation of zero or one outside table 7-9.
func parseDecRefPicMarking(r *fieldReader, idrPic bool) (*DecRefPicMarking, error) {
	d := &DecRefPicMarking{}
	if idrPic {
		d.NoOutputOfPriorPicsFlag = r.readFlag()
		d.LongTermReferenceFlag = r.readFlag()
	} else {
		d.AdaptiveRefPicMarkingModeFlag = r.readFlag()
		if d.AdaptiveRefPicMarkingModeFlag {
			for {
				op := MMCOOp{MemoryManagementControlOperation: r.readUe()}
				if err := r.err(); err != nil {
					return nil, wrapBits(err, "memory_management_control_operation")
				}
				if op.MemoryManagementControlOperation == 0 ||
					op.MemoryManagementControlOperation > 6 {
					break
				}
				switch op.MemoryManagementControlOperation {
				case 1, 3:
					op.DifferenceOfPicNumsMinus1 = r.readUe()
				}
				if op.MemoryManagementControlOperation == 2 {
					op.LongTermPicNum = r.readUe()
				}
				switch op.MemoryManagementControlOperation {
				case 3, 6:
					op.LongTermFrameIdx = r.readUe()
				}
				if op.MemoryManagementControlOperation == 4 {
					op.MaxLongTermFrameIdxPlus1 = r.readUe()
				}
				d.Ops = append(d.Ops, op)
			}
		}
	}
	if err := r.err(); err != nil {
		return nil, wrapBits(err, "dec_ref_pic_marking")
	}
	return d, nil
}

// SliceHeader describes a slice header as defined by section 7.3.3 of ITU-T
// H.264. Field semantics are given in section 7.4.3.
type SliceHeader struct {
	FirstMbInSlice          uint32
	SliceType               uint32
	PPSID                   uint32
	ColorPlaneID            uint8
	FrameNum                uint32
	FieldPic                bool
	BottomField             bool
	IDRPicID                uint32
	PicOrderCntLsb          uint32
	DeltaPicOrderCntBottom  int32
	DeltaPicOrderCnt        [2]int32
	RedundantPicCnt         uint32
	DirectSpatialMvPred     bool
	NumRefIdxActiveOverride bool
	NumRefIdxL0ActiveMinus1 uint32
	NumRefIdxL1ActiveMinus1 uint32

	*RefPicListModification
	*PredWeightTable
	*DecRefPicMarking

	CabacInitIdc               uint32
	SliceQpDelta               int32
	SpForSwitch                bool
	SliceQsDelta               int32
	DisableDeblockingFilterIdc uint32
	SliceAlphaC0OffsetDiv2     int32
	SliceBetaOffsetDiv2        int32
	SliceGroupChangeCycle      uint32
}

// TypeName returns the table 7-6 name of the slice coding type.
func (h *SliceHeader) TypeName() string {
	return sliceTypeName[h.SliceType%5]
}

// ParseSlice decodes the slice header whose NAL header byte is at dataOffset
// in the parser's buffer. unit must be the NALUnit framed at that offset; it
// supplies nal_ref_idc and the IDR classification that gate header fields.
// The referenced PPS, and the SPS it references in turn, must already be in
// the parser's store.
func (p *Parser) ParseSlice(dataOffset int, unit NALUnit) (*SliceHeader, error) {
	payload, err := p.payload(dataOffset)
	if err != nil {
		return nil, err
	}
	return parseSliceHeader(bits.NewBitReader(payload), &p.store, unit)
}

// parseSliceHeader parses a slice header from br following the syntax
// structure of section 7.3.3, resolving parameter sets from store.
func parseSliceHeader(br *bits.BitReader, store *paramSetStore, unit NALUnit) (*SliceHeader, error) {
	h := &SliceHeader{}
	r := newFieldReader(br)

	h.FirstMbInSlice = r.readUe()
	h.SliceType = r.readUe()
	h.PPSID = r.readUe()
	if err := r.err(); err != nil {
		return nil, wrapBits(err, "slice header")
	}

	pps := store.getPPS(h.PPSID)
	if pps == nil {
		return nil, errors.Wrapf(ErrParse, "slice references unknown PPS %d", h.PPSID)
	}
	sps := store.getSPS(pps.SPSID)
	if sps == nil {
		return nil, errors.Wrapf(ErrParse, "PPS %d references unknown SPS %d", h.PPSID, pps.SPSID)
	}

	if sps.SeparateColorPlaneFlag {
		h.ColorPlaneID = uint8(r.readBits(2))
	}
	h.FrameNum = r.readBits(int(sps.Log2MaxFrameNumMinus4) + 4)
	if !sps.FrameMBSOnlyFlag {
		h.FieldPic = r.readFlag()
		if h.FieldPic {
			h.BottomField = r.readFlag()
		}
	}
	if unit.IDRPicFlag {
		h.IDRPicID = r.readUe()
	}

	if sps.PicOrderCntType == 0 {
		h.PicOrderCntLsb = r.readBits(int(sps.Log2MaxPicOrderCntLSBMinus4) + 4)
		if pps.BottomFieldPicOrderInFramePresent && !h.FieldPic {
			h.DeltaPicOrderCntBottom = r.readSe()
		}
	}
	if sps.PicOrderCntType == 1 && !sps.DeltaPicOrderAlwaysZeroFlag {
		h.DeltaPicOrderCnt[0] = r.readSe()
		if pps.BottomFieldPicOrderInFramePresent && !h.FieldPic {
			h.DeltaPicOrderCnt[1] = r.readSe()
		}
	}
	if pps.RedundantPicCntPresent {
		h.RedundantPicCnt = r.readUe()
	}

	if isBSlice(h.SliceType) {
		h.DirectSpatialMvPred = r.readFlag()
	}
	h.NumRefIdxL0ActiveMinus1 = pps.NumRefIdxL0DefaultActiveMinus1
	h.NumRefIdxL1ActiveMinus1 = pps.NumRefIdxL1DefaultActiveMinus1
	if isPSlice(h.SliceType) || isSPSlice(h.SliceType) || isBSlice(h.SliceType) {
		h.NumRefIdxActiveOverride = r.readFlag()
		if h.NumRefIdxActiveOverride {
			h.NumRefIdxL0ActiveMinus1 = r.readUe()
			if isBSlice(h.SliceType) {
				h.NumRefIdxL1ActiveMinus1 = r.readUe()
			}
		}
	}
	if err := r.err(); err != nil {
		return nil, wrapBits(err, "slice header")
	}

	if unit.TypeNum == 20 || unit.TypeNum == 21 {
		// Annex H slice extensions carry a ref_pic_list_mvc_modification.
		return nil, errors.Wrap(ErrUnimplemented, "ref_pic_list_mvc_modification")
	}
	var err error
	h.RefPicListModification, err = parseRefPicListModification(r, h.SliceType)
	if err != nil {
		return nil, err
	}

	if (pps.WeightedPred && (isPSlice(h.SliceType) || isSPSlice(h.SliceType))) ||
		(pps.WeightedBipred == 1 && isBSlice(h.SliceType)) {
		h.PredWeightTable, err = parsePredWeightTable(r, h, sps.chromaArrayType())
		if err != nil {
			return nil, err
		}
	}

	if unit.RefIdc != 0 {
		h.DecRefPicMarking, err = parseDecRefPicMarking(r, unit.IDRPicFlag)
		if err != nil {
			return nil, err
		}
	}

	if pps.EntropyCodingMode && !isISlice(h.SliceType) && !isSISlice(h.SliceType) {
		h.CabacInitIdc = r.readUe()
	}
	h.SliceQpDelta = r.readSe()

	if isSPSlice(h.SliceType) || isSISlice(h.SliceType) {
		if isSPSlice(h.SliceType) {
			h.SpForSwitch = r.readFlag()
		}
		h.SliceQsDelta = r.readSe()
	}

	if pps.DeblockingFilterControlPresent {
		h.DisableDeblockingFilterIdc = r.readUe()
		if h.DisableDeblockingFilterIdc != 1 {
			h.SliceAlphaC0OffsetDiv2 = r.readSe()
			h.SliceBetaOffsetDiv2 = r.readSe()
		}
	}

	if pps.NumSliceGroupsMinus1 > 0 && pps.SliceGroupMapType >= 3 && pps.SliceGroupMapType <= 5 {
		rate := pps.SliceGroupChangeRateMinus1 + 1
		n := ceilLog2((sps.picSizeInMapUnits()+rate-1)/rate + 1)
		h.SliceGroupChangeCycle = r.readBits(n)
	}

	if err := r.err(); err != nil {
		return nil, wrapBits(err, "slice header")
	}
	return h, nil
}
