/*
DESCRIPTION
  slice_test.go provides testing for slice header parsing, including the
  ref_pic_list_modification, pred_weight_table and dec_ref_pic_marking
  sub-structures and parameter set resolution.
*/

package h264nal

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/vidtools/h264nal/bits"
)

// TestParseSlicePipeline walks a stream of SPS, PPS and IDR slice units and
// checks the slice header decodes against the stored parameter sets.
func TestParseSlicePipeline(t *testing.T) {
	spsPayload, err := binToSlice(
		"0100 0010" + // u(8) profile_idc = 66
			"000000" + // u(1)x6 constraint_set flags = 0
			"00" + // u(2) reserved_zero_2bits
			"0001 1110" + // u(8) level_idc = 30
			"1" + // ue(v) seq_parameter_set_id = 0
			"1" + // ue(v) log2_max_frame_num_minus4 = 0
			"1" + // ue(v) pic_order_cnt_type = 0
			"011" + // ue(v) log2_max_pic_order_cnt_lsb_minus4 = 2
			"011" + // ue(v) max_num_ref_frames = 2
			"0" + // u(1) gaps_in_frame_num_value_allowed_flag = 0
			"00000101000" + // ue(v) pic_width_in_mbs_minus1 = 39
			"000011110" + // ue(v) pic_height_in_map_units_minus1 = 29
			"1" + // u(1) frame_mbs_only_flag = 1
			"1" + // u(1) direct_8x8_inference_flag = 1
			"0" + // u(1) frame_cropping_flag = 0
			"0" + // u(1) vui_parameters_present_flag = 0
			"1") // rbsp stop bit
	if err != nil {
		t.Fatalf("did not expect error: %v from binToSlice", err)
	}

	ppsPayload, err := binToSlice(
		"1" + // ue(v) pic_parameter_set_id = 0
			"1" + // ue(v) seq_parameter_set_id = 0
			"1" + // u(1) entropy_coding_mode_flag = 1
			"0" + // u(1) bottom_field_pic_order_in_frame_present_flag = 0
			"1" + // ue(v) num_slice_groups_minus1 = 0
			"1" + // ue(v) num_ref_idx_l0_default_active_minus1 = 0
			"1" + // ue(v) num_ref_idx_l1_default_active_minus1 = 0
			"1" + // u(1) weighted_pred_flag = 1
			"00" + // u(2) weighted_bipred_idc = 0
			"1" + // se(v) pic_init_qp_minus26 = 0
			"1" + // se(v) pic_init_qs_minus26 = 0
			"1" + // se(v) chroma_qp_index_offset = 0
			"1" + // u(1) deblocking_filter_control_present_flag = 1
			"0" + // u(1) constrained_intra_pred_flag = 0
			"0" + // u(1) redundant_pic_cnt_present_flag = 0
			"1000 0000") // rbsp trailing bits
	if err != nil {
		t.Fatalf("did not expect error: %v from binToSlice", err)
	}

	slicePayload, err := binToSlice(
		"1" + // ue(v) first_mb_in_slice = 0
			"0001000" + // ue(v) slice_type = 7 (I)
			"1" + // ue(v) pic_parameter_set_id = 0
			"0000" + // u(4) frame_num = 0
			"1" + // ue(v) idr_pic_id = 0
			"000000" + // u(6) pic_order_cnt_lsb = 0
			"0" + // u(1) no_output_of_prior_pics_flag = 0
			"0" + // u(1) long_term_reference_flag = 0
			"011" + // se(v) slice_qp_delta = -1
			"010" + // ue(v) disable_deblocking_filter_idc = 1
			"1") // rbsp stop bit
	if err != nil {
		t.Fatalf("did not expect error: %v from binToSlice", err)
	}

	var buf []byte
	sc := []byte{0x00, 0x00, 0x01}
	buf = append(buf, sc...)
	buf = append(buf, 0x67)
	buf = append(buf, spsPayload...)
	buf = append(buf, sc...)
	buf = append(buf, 0x68)
	buf = append(buf, ppsPayload...)
	buf = append(buf, sc...)
	buf = append(buf, 0x65)
	buf = append(buf, slicePayload...)

	p := NewParser(buf)
	var header *SliceHeader
	for offset := 0; ; {
		u, err := p.ParseNALUnit(offset)
		if err != nil {
			break
		}
		switch u.Type {
		case UnitTypeSPS:
			if _, err := p.ParseSPS(u.DataOffset); err != nil {
				t.Fatalf("did not expect error: %v from ParseSPS", err)
			}
		case UnitTypePPS:
			if _, err := p.ParsePPS(u.DataOffset); err != nil {
				t.Fatalf("did not expect error: %v from ParsePPS", err)
			}
		case UnitTypeIDR:
			header, err = p.ParseSlice(u.DataOffset, u)
			if err != nil {
				t.Fatalf("did not expect error: %v from ParseSlice", err)
			}
		}
		offset += u.Size
	}

	if header == nil {
		t.Fatal("no slice header decoded")
	}
	want := &SliceHeader{
		SliceType:                  7,
		SliceQpDelta:               -1,
		DisableDeblockingFilterIdc: 1,
		RefPicListModification:     &RefPicListModification{},
		DecRefPicMarking:           &DecRefPicMarking{},
	}
	if diff := cmp.Diff(want, header); diff != "" {
		t.Errorf("unexpected slice header (-want +got):\n%s", diff)
	}
	if header.TypeName() != "I" {
		t.Errorf("unexpected slice type name %q", header.TypeName())
	}
}

// TestParseSliceMissingPPS checks that a slice referencing a PPS the parser
// has not seen fails with the generic parse error.
func TestParseSliceMissingPPS(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x01, 0x65, 0x88, 0x80}
	p := NewParser(buf)
	u, err := p.ParseNALUnit(0)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	_, err = p.ParseSlice(u.DataOffset, u)
	if errors.Cause(err) != ErrParse {
		t.Errorf("expected ErrParse for missing PPS, got %v", err)
	}
}

// TestParseSliceHeaderP exercises the P slice path: reference index
// override, reference picture list modification, prediction weight table
// and adaptive reference picture marking.
func TestParseSliceHeaderP(t *testing.T) {
	store := newParamSetStore()
	store.setSPS(&SPS{
		ChromaFormatIDC:  chroma420,
		PicOrderCntType:  2,
		FrameMBSOnlyFlag: true,
	})
	store.setPPS(&PPS{WeightedPred: true})

	in := "1" + // ue(v) first_mb_in_slice = 0
		"1" + // ue(v) slice_type = 0 (P)
		"1" + // ue(v) pic_parameter_set_id = 0
		"0011" + // u(4) frame_num = 3
		"1" + // u(1) num_ref_idx_active_override_flag = 1
		"010" + // ue(v) num_ref_idx_l0_active_minus1 = 1
		// ref_pic_list_modification
		"1" + // u(1) ref_pic_list_modification_flag_l0 = 1
		"1" + // ue(v) modification_of_pic_nums_idc = 0
		"00101" + // ue(v) abs_diff_pic_num_minus1 = 4
		"011" + // ue(v) modification_of_pic_nums_idc = 2
		"010" + // ue(v) long_term_pic_num = 1
		"00100" + // ue(v) modification_of_pic_nums_idc = 3
		// pred_weight_table
		"011" + // ue(v) luma_log2_weight_denom = 2
		"1" + // ue(v) chroma_log2_weight_denom = 0
		"1" + // u(1) luma_weight_l0_flag[0] = 1
		"011" + // se(v) luma_weight_l0[0] = -1
		"00100" + // se(v) luma_offset_l0[0] = 2
		"0" + // u(1) chroma_weight_l0_flag[0] = 0
		"0" + // u(1) luma_weight_l0_flag[1] = 0
		"1" + // u(1) chroma_weight_l0_flag[1] = 1
		"010" + // se(v) chroma_weight_l0[1][0] = 1
		"1" + // se(v) chroma_offset_l0[1][0] = 0
		"1" + // se(v) chroma_weight_l0[1][1] = 0
		"011" + // se(v) chroma_offset_l0[1][1] = -1
		// dec_ref_pic_marking
		"1" + // u(1) adaptive_ref_pic_marking_mode_flag = 1
		"010" + // ue(v) memory_management_control_operation = 1
		"011" + // ue(v) difference_of_pic_nums_minus1 = 2
		"1" + // ue(v) memory_management_control_operation = 0
		"1" + // se(v) slice_qp_delta = 0
		"1" // rbsp stop bit

	inBytes, err := binToSlice(in)
	if err != nil {
		t.Fatalf("did not expect error: %v from binToSlice", err)
	}
	unit := newNALUnit(0, 4, len(inBytes)+5, 2, NALTypeNonIDR)
	got, err := parseSliceHeader(bits.NewBitReader(inBytes), &store, unit)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	want := &SliceHeader{
		SliceType:               0,
		FrameNum:                3,
		NumRefIdxActiveOverride: true,
		NumRefIdxL0ActiveMinus1: 1,
		RefPicListModification: &RefPicListModification{
			RefPicListModificationFlag: [2]bool{true, false},
			ModificationOfPicNums:      [2][]uint32{{0, 2, 3}, nil},
			AbsDiffPicNumMinus1:        [2][]uint32{{4, 0, 0}, nil},
			LongTermPicNum:             [2][]uint32{{0, 1, 0}, nil},
		},
		PredWeightTable: &PredWeightTable{
			LumaLog2WeightDenom: 2,
			LumaWeightFlag:      [2][]bool{{true, false}, nil},
			LumaWeight:          [2][]int32{{-1, 0}, nil},
			LumaOffset:          [2][]int32{{2, 0}, nil},
			ChromaWeightFlag:    [2][]bool{{false, true}, nil},
			ChromaWeight:        [2][][2]int32{{{0, 0}, {1, 0}}, nil},
			ChromaOffset:        [2][][2]int32{{{0, 0}, {0, -1}}, nil},
		},
		DecRefPicMarking: &DecRefPicMarking{
			AdaptiveRefPicMarkingModeFlag: true,
			Ops: []MMCOOp{
				{MemoryManagementControlOperation: 1, DifferenceOfPicNumsMinus1: 2},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected slice header (-want +got):\n%s", diff)
	}
}

// TestParseSliceGroupChangeCycle checks the bit width derivation for
// slice_group_change_cycle with a changing slice group map.
func TestParseSliceGroupChangeCycle(t *testing.T) {
	store := newParamSetStore()
	store.setSPS(&SPS{
		ChromaFormatIDC:           chroma420,
		PicOrderCntType:           2,
		FrameMBSOnlyFlag:          true,
		PicWidthInMBSMinus1:       1,
		PicHeightInMapUnitsMinus1: 1,
	})
	store.setPPS(&PPS{
		NumSliceGroupsMinus1: 1,
		SliceGroupMapType:    3,
	})

	// PicSizeInMapUnits is 4 and the change rate is 1, so the cycle is
	// coded in ceil(log2(4/1 + 1)) = 3 bits.
	in := "1" + // ue(v) first_mb_in_slice = 0
		"011" + // ue(v) slice_type = 2 (I)
		"1" + // ue(v) pic_parameter_set_id = 0
		"0000" + // u(4) frame_num = 0
		"1" + // se(v) slice_qp_delta = 0
		"101" + // u(3) slice_group_change_cycle = 5
		"1" // rbsp stop bit

	inBytes, err := binToSlice(in)
	if err != nil {
		t.Fatalf("did not expect error: %v from binToSlice", err)
	}
	unit := newNALUnit(0, 4, len(inBytes)+5, 0, NALTypeNonIDR)
	got, err := parseSliceHeader(bits.NewBitReader(inBytes), &store, unit)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if got.SliceGroupChangeCycle != 5 {
		t.Errorf("unexpected slice_group_change_cycle\nGot: %d\nWant: 5", got.SliceGroupChangeCycle)
	}
}
