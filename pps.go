/*
DESCRIPTION
  pps.go provides parsing of picture parameter sets per section 7.3.2.2.
*/

package h264nal

import (
	"github.com/pkg/errors"

	"github.com/vidtools/h264nal/bits"
)

// PPS describes a picture parameter set as defined by section 7.3.2.2 of
// ITU-T H.264. Field semantics are given in section 7.4.2.2.
type PPS struct {
	PPSID                             uint32
	SPSID                             uint32
	EntropyCodingMode                 bool
	BottomFieldPicOrderInFramePresent bool

	NumSliceGroupsMinus1       uint32
	SliceGroupMapType          uint32
	RunLengthMinus1            []uint32
	TopLeft                    []uint32
	BottomRight                []uint32
	SliceGroupChangeDirection  bool
	SliceGroupChangeRateMinus1 uint32
	PicSizeInMapUnitsMinus1    uint32
	SliceGroupID               []uint32

	NumRefIdxL0DefaultActiveMinus1 uint32
	NumRefIdxL1DefaultActiveMinus1 uint32
	WeightedPred                   bool
	WeightedBipred                 uint8
	PicInitQpMinus26               int32
	PicInitQsMinus26               int32
	ChromaQpIndexOffset            int32
	DeblockingFilterControlPresent bool
	ConstrainedIntraPred           bool
	RedundantPicCntPresent         bool

	// Trailing fields, present only when more RBSP data follows
	// redundant_pic_cnt_present_flag.
	Transform8x8Mode               bool
	PicScalingMatrixPresent        bool
	PicScalingListPresent          []bool
	ScalingList4x4                 [][]int32
	UseDefaultScalingMatrix4x4Flag []bool
	ScalingList8x8                 [][]int32
	UseDefaultScalingMatrix8x8Flag []bool
	SecondChromaQpIndexOffset      int32
}

// ParsePPS decodes the picture parameter set whose NAL header byte is at
// dataOffset in the parser's buffer. On success the PPS is retained by the
// parser, replacing any prior PPS with the same id, and returned.
//
// The scaling list count of the trailing block depends on the chroma format
// of the referenced SPS; if that SPS has not been seen, 4:2:0 is assumed.
func (p *Parser) ParsePPS(dataOffset int) (*PPS, error) {
	payload, err := p.payload(dataOffset)
	if err != nil {
		return nil, err
	}
	pps, err := parsePPS(bits.NewBitReader(payload), &p.store)
	if err != nil {
		return nil, err
	}
	p.store.setPPS(pps)
	p.log.Debug().Uint32("id", pps.PPSID).Uint32("sps_id", pps.SPSID).Msg("stored PPS")
	return pps, nil
}

// parsePPS parses a picture parameter set RBSP from br following the syntax
// structure of section 7.3.2.2. store is consulted only for the chroma
// format governing the trailing scaling list count.
func parsePPS(br *bits.BitReader, store *paramSetStore) (*PPS, error) {
	pps := &PPS{}
	r := newFieldReader(br)

	pps.PPSID = r.readUe()
	pps.SPSID = r.readUe()
	pps.EntropyCodingMode = r.readFlag()
	pps.BottomFieldPicOrderInFramePresent = r.readFlag()
	pps.NumSliceGroupsMinus1 = r.readUe()
	if err := r.err(); err != nil {
		return nil, wrapBits(err, "PPS")
	}
	if pps.PPSID > maxPPSID {
		return nil, errors.Wrapf(ErrParse, "pic_parameter_set_id %d out of range", pps.PPSID)
	}
	if pps.SPSID > maxSPSID {
		return nil, errors.Wrapf(ErrParse, "seq_parameter_set_id %d out of range", pps.SPSID)
	}
	if pps.NumSliceGroupsMinus1 > 7 {
		return nil, errors.Wrapf(ErrParse, "num_slice_groups_minus1 %d out of range", pps.NumSliceGroupsMinus1)
	}

	if pps.NumSliceGroupsMinus1 > 0 {
		pps.SliceGroupMapType = r.readUe()
		if err := r.err(); err != nil {
			return nil, wrapBits(err, "slice_group_map_type")
		}
		switch {
		case pps.SliceGroupMapType == 1:
			// Dispersed mapping carries no further syntax elements.
		case pps.SliceGroupMapType == 0:
			for iGroup := uint32(0); iGroup <= pps.NumSliceGroupsMinus1; iGroup++ {
				pps.RunLengthMinus1 = append(pps.RunLengthMinus1, r.readUe())
			}
		case pps.SliceGroupMapType == 2:
			for iGroup := uint32(0); iGroup < pps.NumSliceGroupsMinus1; iGroup++ {
				pps.TopLeft = append(pps.TopLeft, r.readUe())
				pps.BottomRight = append(pps.BottomRight, r.readUe())
			}
		case pps.SliceGroupMapType >= 3 && pps.SliceGroupMapType <= 5:
			pps.SliceGroupChangeDirection = r.readFlag()
			pps.SliceGroupChangeRateMinus1 = r.readUe()
		case pps.SliceGroupMapType == 6:
			pps.PicSizeInMapUnitsMinus1 = r.readUe()
			if err := r.err(); err != nil {
				return nil, wrapBits(err, "pic_size_in_map_units_minus1")
			}
			n := ceilLog2(pps.NumSliceGroupsMinus1 + 1)
			for i := uint32(0); i <= pps.PicSizeInMapUnitsMinus1; i++ {
				pps.SliceGroupID = append(pps.SliceGroupID, r.readBits(n))
				if err := r.err(); err != nil {
					return nil, wrapBits(err, "slice_group_id")
				}
			}
		default:
			return nil, errors.Wrapf(ErrParse, "slice_group_map_type %d out of range", pps.SliceGroupMapType)
		}
	}

	pps.NumRefIdxL0DefaultActiveMinus1 = r.readUe()
	pps.NumRefIdxL1DefaultActiveMinus1 = r.readUe()
	pps.WeightedPred = r.readFlag()
	pps.WeightedBipred = uint8(r.readBits(2))
	pps.PicInitQpMinus26 = r.readSe()
	pps.PicInitQsMinus26 = r.readSe()
	pps.ChromaQpIndexOffset = r.readSe()
	pps.DeblockingFilterControlPresent = r.readFlag()
	pps.ConstrainedIntraPred = r.readFlag()
	pps.RedundantPicCntPresent = r.readFlag()
	if err := r.err(); err != nil {
		return nil, wrapBits(err, "PPS")
	}

	if br.MoreRBSPData() {
		pps.Transform8x8Mode = r.readFlag()
		pps.PicScalingMatrixPresent = r.readFlag()
		if pps.PicScalingMatrixPresent {
			chromaFormat := uint32(chroma420)
			if sps := store.getSPS(pps.SPSID); sps != nil {
				chromaFormat = sps.ChromaFormatIDC
			}
			n := 6
			if pps.Transform8x8Mode {
				if chromaFormat == chroma444 {
					n += 6
				} else {
					n += 2
				}
			}
			for i := 0; i < n; i++ {
				pps.PicScalingListPresent = append(pps.PicScalingListPresent, r.readFlag())
				if !pps.PicScalingListPresent[i] {
					continue
				}
				if i < 6 {
					list, useDefault, err := scalingList(r, 16)
					if err != nil {
						return nil, err
					}
					pps.ScalingList4x4 = append(pps.ScalingList4x4, list)
					pps.UseDefaultScalingMatrix4x4Flag = append(pps.UseDefaultScalingMatrix4x4Flag, useDefault)
				} else {
					list, useDefault, err := scalingList(r, 64)
					if err != nil {
						return nil, err
					}
					pps.ScalingList8x8 = append(pps.ScalingList8x8, list)
					pps.UseDefaultScalingMatrix8x8Flag = append(pps.UseDefaultScalingMatrix8x8Flag, useDefault)
				}
			}
		}
		pps.SecondChromaQpIndexOffset = r.readSe()
		if err := r.err(); err != nil {
			return nil, wrapBits(err, "PPS")
		}
	}
	return pps, nil
}
