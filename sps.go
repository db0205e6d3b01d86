/*
DESCRIPTION
  sps.go provides parsing of sequence parameter sets, including the optional
  VUI and HRD sub-structures of Annex E.
*/

package h264nal

import (
	"github.com/pkg/errors"

	"github.com/vidtools/h264nal/bits"
)

// Profiles for which the chroma format, bit depth and scaling matrix fields
// are present in the SPS, per section 7.3.2.1.1.
var highProfiles = []uint8{100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135}

// SPS describes a sequence parameter set as defined by section 7.3.2.1.1 of
// ITU-T H.264. Field semantics are given in section 7.4.2.1.
type SPS struct {
	// profile_idc and level_idc indicate the profile and level to which the
	// coded video sequence conforms.
	Profile  uint8
	LevelIDC uint8

	// The constraint_setx_flag flags specify the constraints of A.2 with
	// which the stream complies.
	Constraint0 bool
	Constraint1 bool
	Constraint2 bool
	Constraint3 bool
	Constraint4 bool
	Constraint5 bool

	// seq_parameter_set_id identifies this sequence parameter set for
	// reference by picture parameter sets, in the range 0 to 31.
	SPSID uint32

	// chroma_format_idc specifies the chroma sampling relative to the luma
	// sampling, as specified in clause 6.2.
	ChromaFormatIDC uint32

	// separate_colour_plane_flag if true specifies that the three components
	// of the 4:4:4 chroma format are coded separately.
	SeparateColorPlaneFlag bool

	// bit_depth_luma_minus8 and bit_depth_chroma_minus8 specify the sample
	// bit depths of the luma and chroma arrays.
	BitDepthLumaMinus8   uint32
	BitDepthChromaMinus8 uint32

	// qpprime_y_zero_transform_bypass_flag if true specifies a transform
	// bypass operation when QP'_Y is zero, per clause 8.5.
	QPPrimeYZeroTransformBypassFlag bool

	// seq_scaling_matrix_present_flag indicates sequence-level scaling lists
	// follow; seq_scaling_list_present_flag[i] gates each list.
	SeqScalingMatrixPresentFlag bool
	SeqScalingListPresentFlag   []bool

	// Decoded 4x4 and 8x8 scaling lists and the per-list fall-back flags
	// signalling use of the default matrix of table 7-2.
	ScalingList4x4                 [][]int32
	UseDefaultScalingMatrix4x4Flag []bool
	ScalingList8x8                 [][]int32
	UseDefaultScalingMatrix8x8Flag []bool

	// log2_max_frame_num_minus4 allows derivation of MaxFrameNum (eq 7-10).
	Log2MaxFrameNumMinus4 uint32

	// pic_order_cnt_type selects the method for decoding picture order count.
	PicOrderCntType uint32

	// log2_max_pic_order_cnt_lsb_minus4 allows derivation of
	// MaxPicOrderCntLsb (eq 7-11). Present for pic_order_cnt_type 0.
	Log2MaxPicOrderCntLSBMinus4 uint32

	// Picture order count configuration for pic_order_cnt_type 1.
	DeltaPicOrderAlwaysZeroFlag    bool
	OffsetForNonRefPic             int32
	OffsetForTopToBottomField      int32
	NumRefFramesInPicOrderCntCycle uint32
	OffsetForRefFrame              []int32

	// max_num_ref_frames bounds the reference frames used by inter
	// prediction.
	MaxNumRefFrames uint32

	// gaps_in_frame_num_value_allowed_flag specifies the allowed values of
	// frame_num, per clauses 7.4.3 and 8.2.5.2.
	GapsInFrameNumValueAllowed bool

	// Picture dimensions in macroblocks and slice group map units
	// (eq 7-13 and 7-16).
	PicWidthInMBSMinus1       uint32
	PicHeightInMapUnitsMinus1 uint32

	// frame_mbs_only_flag if true restricts the sequence to coded frames;
	// otherwise mb_adaptive_frame_field_flag selects MBAFF coding.
	FrameMBSOnlyFlag         bool
	MBAdaptiveFrameFieldFlag bool

	// direct_8x8_inference_flag selects the derivation of luma motion
	// vectors for B_Skip, B_Direct_16x16 and B_Direct_8x8 (clause 8.4.1.2).
	Direct8x8InferenceFlag bool

	// Frame cropping rectangle, present when frame_cropping_flag is set.
	FrameCroppingFlag     bool
	FrameCropLeftOffset   uint32
	FrameCropRightOffset  uint32
	FrameCropTopOffset    uint32
	FrameCropBottomOffset uint32

	// The vui_parameters() structure of Annex E, when present.
	VUIParametersPresentFlag bool
	VUIParameters            *VUIParameters
}

// picSizeInMapUnits returns PicSizeInMapUnits per eq 7-14 through 7-17.
func (s *SPS) picSizeInMapUnits() uint32 {
	return (s.PicWidthInMBSMinus1 + 1) * (s.PicHeightInMapUnitsMinus1 + 1)
}

// chromaArrayType returns ChromaArrayType per the derivation in
// section 7.4.2.1.1.
func (s *SPS) chromaArrayType() uint32 {
	if s.SeparateColorPlaneFlag {
		return 0
	}
	return s.ChromaFormatIDC
}

// ParseSPS decodes the sequence parameter set whose NAL header byte is at
// dataOffset in the parser's buffer. On success the SPS is retained by the
// parser, replacing any prior SPS with the same id, and returned.
func (p *Parser) ParseSPS(dataOffset int) (*SPS, error) {
	payload, err := p.payload(dataOffset)
	if err != nil {
		return nil, err
	}
	sps, err := parseSPS(bits.NewBitReader(payload))
	if err != nil {
		return nil, err
	}
	p.store.setSPS(sps)
	p.log.Debug().Uint32("id", sps.SPSID).Uint8("profile", sps.Profile).Msg("stored SPS")
	return sps, nil
}

// parseSPS parses a sequence parameter set RBSP from br following the syntax
// structure of section 7.3.2.1.1.
func parseSPS(br *bits.BitReader) (*SPS, error) {
	sps := &SPS{}
	r := newFieldReader(br)

	sps.Profile = uint8(r.readBits(8))
	sps.Constraint0 = r.readFlag()
	sps.Constraint1 = r.readFlag()
	sps.Constraint2 = r.readFlag()
	sps.Constraint3 = r.readFlag()
	sps.Constraint4 = r.readFlag()
	sps.Constraint5 = r.readFlag()
	r.readBits(2) // reserved_zero_2bits
	sps.LevelIDC = uint8(r.readBits(8))
	sps.SPSID = r.readUe()
	if err := r.err(); err != nil {
		return nil, wrapBits(err, "SPS")
	}
	if sps.SPSID > maxSPSID {
		return nil, errors.Wrapf(ErrParse, "seq_parameter_set_id %d out of range", sps.SPSID)
	}

	if isInList(highProfiles, sps.Profile) {
		sps.ChromaFormatIDC = r.readUe()
		if sps.ChromaFormatIDC == chroma444 {
			sps.SeparateColorPlaneFlag = r.readFlag()
		}
		sps.BitDepthLumaMinus8 = r.readUe()
		sps.BitDepthChromaMinus8 = r.readUe()
		sps.QPPrimeYZeroTransformBypassFlag = r.readFlag()
		sps.SeqScalingMatrixPresentFlag = r.readFlag()

		if sps.SeqScalingMatrixPresentFlag {
			n := 8
			if sps.ChromaFormatIDC == chroma444 {
				n = 12
			}
			for i := 0; i < n; i++ {
				sps.SeqScalingListPresentFlag = append(sps.SeqScalingListPresentFlag, r.readFlag())
				if !sps.SeqScalingListPresentFlag[i] {
					continue
				}
				if i < 6 {
					list, useDefault, err := scalingList(r, 16)
					if err != nil {
						return nil, err
					}
					sps.ScalingList4x4 = append(sps.ScalingList4x4, list)
					sps.UseDefaultScalingMatrix4x4Flag = append(sps.UseDefaultScalingMatrix4x4Flag, useDefault)
				} else {
					list, useDefault, err := scalingList(r, 64)
					if err != nil {
						return nil, err
					}
					sps.ScalingList8x8 = append(sps.ScalingList8x8, list)
					sps.UseDefaultScalingMatrix8x8Flag = append(sps.UseDefaultScalingMatrix8x8Flag, useDefault)
				}
			}
		}
	} else {
		// Inferred as 4:2:0 for profiles without the chroma fields.
		sps.ChromaFormatIDC = chroma420
	}

	sps.Log2MaxFrameNumMinus4 = r.readUe()
	sps.PicOrderCntType = r.readUe()

	switch sps.PicOrderCntType {
	case 0:
		sps.Log2MaxPicOrderCntLSBMinus4 = r.readUe()
	case 1:
		sps.DeltaPicOrderAlwaysZeroFlag = r.readFlag()
		sps.OffsetForNonRefPic = r.readSe()
		sps.OffsetForTopToBottomField = r.readSe()
		sps.NumRefFramesInPicOrderCntCycle = r.readUe()
		if err := r.err(); err != nil {
			return nil, wrapBits(err, "SPS")
		}
		if sps.NumRefFramesInPicOrderCntCycle > 255 {
			return nil, errors.Wrapf(ErrParse, "num_ref_frames_in_pic_order_cnt_cycle %d out of range",
				sps.NumRefFramesInPicOrderCntCycle)
		}
		for i := uint32(0); i < sps.NumRefFramesInPicOrderCntCycle; i++ {
			sps.OffsetForRefFrame = append(sps.OffsetForRefFrame, r.readSe())
		}
	}

	sps.MaxNumRefFrames = r.readUe()
	sps.GapsInFrameNumValueAllowed = r.readFlag()
	sps.PicWidthInMBSMinus1 = r.readUe()
	sps.PicHeightInMapUnitsMinus1 = r.readUe()
	sps.FrameMBSOnlyFlag = r.readFlag()
	if !sps.FrameMBSOnlyFlag {
		sps.MBAdaptiveFrameFieldFlag = r.readFlag()
	}
	sps.Direct8x8InferenceFlag = r.readFlag()
	sps.FrameCroppingFlag = r.readFlag()
	if sps.FrameCroppingFlag {
		sps.FrameCropLeftOffset = r.readUe()
		sps.FrameCropRightOffset = r.readUe()
		sps.FrameCropTopOffset = r.readUe()
		sps.FrameCropBottomOffset = r.readUe()
	}
	sps.VUIParametersPresentFlag = r.readFlag()
	if err := r.err(); err != nil {
		return nil, wrapBits(err, "SPS")
	}

	if sps.VUIParametersPresentFlag {
		vui, err := parseVUIParameters(br)
		if err != nil {
			return nil, errors.WithMessage(err, "VUI")
		}
		sps.VUIParameters = vui
	}
	return sps, nil
}

// scalingList parses one scaling list of the given size following the syntax
// structure of section 7.3.2.1.1.1. It returns the decoded list and whether
// the default matrix of table 7-2 is to be used instead.
func scalingList(r *fieldReader, size int) ([]int32, bool, error) {
	var (
		list       []int32
		useDefault bool
	)
	lastScale := int32(8)
	nextScale := int32(8)
	for j := 0; j < size; j++ {
		if nextScale != 0 {
			deltaScale := r.readSe()
			if err := r.err(); err != nil {
				return nil, false, wrapBits(err, "delta_scale")
			}
			nextScale = (lastScale + deltaScale + 256) % 256
			useDefault = j == 0 && nextScale == 0
		}
		if nextScale == 0 {
			list = append(list, lastScale)
		} else {
			list = append(list, nextScale)
		}
		lastScale = list[j]
	}
	return list, useDefault, nil
}

// Extended sample aspect ratio indicator, per table E-1.
const extendedSAR = 255

// VUIParameters describes the video usability information of section E.1.1.
// Field semantics are given in section E.2.1.
type VUIParameters struct {
	// Sample aspect ratio; sar_width and sar_height are present only when
	// aspect_ratio_idc indicates an extended SAR.
	AspectRatioInfoPresentFlag bool
	AspectRatioIDC             uint8
	SARWidth                   uint16
	SARHeight                  uint16

	OverscanInfoPresentFlag bool
	OverscanAppropriateFlag bool

	// Video signal description.
	VideoSignalTypePresentFlag  bool
	VideoFormat                 uint8
	VideoFullRangeFlag          bool
	ColorDescriptionPresentFlag bool
	ColorPrimaries              uint8
	TransferCharacteristics     uint8
	MatrixCoefficients          uint8

	ChromaLocInfoPresentFlag       bool
	ChromaSampleLocTypeTopField    uint32
	ChromaSampleLocTypeBottomField uint32

	// Timing; num_units_in_tick and time_scale define the clock tick.
	TimingInfoPresentFlag bool
	NumUnitsInTick        uint32
	TimeScale             uint32
	FixedFrameRateFlag    bool

	// Hypothetical reference decoder parameters of section E.1.2.
	NALHRDParametersPresentFlag bool
	NALHRDParameters            *HRDParameters
	VCLHRDParametersPresentFlag bool
	VCLHRDParameters            *HRDParameters
	LowDelayHRDFlag             bool

	PicStructPresentFlag bool

	// Bitstream restriction parameters.
	BitstreamRestrictionFlag           bool
	MotionVectorsOverPicBoundariesFlag bool
	MaxBytesPerPicDenom                uint32
	MaxBitsPerMBDenom                  uint32
	Log2MaxMVLengthHorizontal          uint32
	Log2MaxMVLengthVertical            uint32
	MaxNumReorderFrames                uint32
	MaxDecFrameBuffering               uint32
}

// parseVUIParameters parses video usability information from br following
// the syntax structure of section E.1.1.
func parseVUIParameters(br *bits.BitReader) (*VUIParameters, error) {
	p := &VUIParameters{}
	r := newFieldReader(br)

	p.AspectRatioInfoPresentFlag = r.readFlag()
	if p.AspectRatioInfoPresentFlag {
		p.AspectRatioIDC = uint8(r.readBits(8))
		if p.AspectRatioIDC == extendedSAR {
			p.SARWidth = uint16(r.readBits(16))
			p.SARHeight = uint16(r.readBits(16))
		}
	}

	p.OverscanInfoPresentFlag = r.readFlag()
	if p.OverscanInfoPresentFlag {
		p.OverscanAppropriateFlag = r.readFlag()
	}

	p.VideoSignalTypePresentFlag = r.readFlag()
	if p.VideoSignalTypePresentFlag {
		p.VideoFormat = uint8(r.readBits(3))
		p.VideoFullRangeFlag = r.readFlag()
		p.ColorDescriptionPresentFlag = r.readFlag()
		if p.ColorDescriptionPresentFlag {
			p.ColorPrimaries = uint8(r.readBits(8))
			p.TransferCharacteristics = uint8(r.readBits(8))
			p.MatrixCoefficients = uint8(r.readBits(8))
		}
	}

	p.ChromaLocInfoPresentFlag = r.readFlag()
	if p.ChromaLocInfoPresentFlag {
		p.ChromaSampleLocTypeTopField = r.readUe()
		p.ChromaSampleLocTypeBottomField = r.readUe()
	}

	p.TimingInfoPresentFlag = r.readFlag()
	if p.TimingInfoPresentFlag {
		p.NumUnitsInTick = r.readBits(32)
		p.TimeScale = r.readBits(32)
		p.FixedFrameRateFlag = r.readFlag()
	}
	if err := r.err(); err != nil {
		return nil, wrapBits(err, "vui_parameters")
	}

	p.NALHRDParametersPresentFlag = r.readFlag()
	if p.NALHRDParametersPresentFlag {
		hrd, err := parseHRDParameters(br)
		if err != nil {
			return nil, errors.WithMessage(err, "NAL HRD")
		}
		p.NALHRDParameters = hrd
	}
	p.VCLHRDParametersPresentFlag = r.readFlag()
	if p.VCLHRDParametersPresentFlag {
		hrd, err := parseHRDParameters(br)
		if err != nil {
			return nil, errors.WithMessage(err, "VCL HRD")
		}
		p.VCLHRDParameters = hrd
	}
	if p.NALHRDParametersPresentFlag || p.VCLHRDParametersPresentFlag {
		p.LowDelayHRDFlag = r.readFlag()
	}

	p.PicStructPresentFlag = r.readFlag()
	p.BitstreamRestrictionFlag = r.readFlag()
	if p.BitstreamRestrictionFlag {
		p.MotionVectorsOverPicBoundariesFlag = r.readFlag()
		p.MaxBytesPerPicDenom = r.readUe()
		p.MaxBitsPerMBDenom = r.readUe()
		p.Log2MaxMVLengthHorizontal = r.readUe()
		p.Log2MaxMVLengthVertical = r.readUe()
		p.MaxNumReorderFrames = r.readUe()
		p.MaxDecFrameBuffering = r.readUe()
	}
	if err := r.err(); err != nil {
		return nil, wrapBits(err, "vui_parameters")
	}
	return p, nil
}

// HRDParameters describes the hypothetical reference decoder parameters of
// section E.1.2. Field semantics are given in section E.2.2.
type HRDParameters struct {
	// cpb_cnt_minus1 plus 1 is the number of alternative CPB specifications;
	// the per-CPB values below hold one entry per specification.
	CPBCntMinus1       uint32
	BitRateScale       uint8
	CPBSizeScale       uint8
	BitRateValueMinus1 []uint32
	CPBSizeValueMinus1 []uint32
	CBRFlag            []bool

	InitialCPBRemovalDelayLenMinus1 uint8
	CPBRemovalDelayLenMinus1        uint8
	DPBOutputDelayLenMinus1         uint8
	TimeOffsetLen                   uint8
}

// parseHRDParameters parses hypothetical reference decoder parameters from
// br following the syntax structure of section E.1.2.
func parseHRDParameters(br *bits.BitReader) (*HRDParameters, error) {
	h := &HRDParameters{}
	r := newFieldReader(br)

	h.CPBCntMinus1 = r.readUe()
	if err := r.err(); err != nil {
		return nil, wrapBits(err, "cpb_cnt_minus1")
	}
	if h.CPBCntMinus1 > 31 {
		return nil, errors.Wrapf(ErrParse, "cpb_cnt_minus1 %d out of range", h.CPBCntMinus1)
	}
	h.BitRateScale = uint8(r.readBits(4))
	h.CPBSizeScale = uint8(r.readBits(4))
	for i := uint32(0); i <= h.CPBCntMinus1; i++ {
		h.BitRateValueMinus1 = append(h.BitRateValueMinus1, r.readUe())
		h.CPBSizeValueMinus1 = append(h.CPBSizeValueMinus1, r.readUe())
		h.CBRFlag = append(h.CBRFlag, r.readFlag())
	}
	h.InitialCPBRemovalDelayLenMinus1 = uint8(r.readBits(5))
	h.CPBRemovalDelayLenMinus1 = uint8(r.readBits(5))
	h.DPBOutputDelayLenMinus1 = uint8(r.readBits(5))
	h.TimeOffsetLen = uint8(r.readBits(5))

	if err := r.err(); err != nil {
		return nil, wrapBits(err, "hrd_parameters")
	}
	return h, nil
}
