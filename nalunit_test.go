/*
DESCRIPTION
  nalunit_test.go provides testing for NAL unit classification.
*/

package h264nal

import "testing"

func TestNALUnitClassification(t *testing.T) {
	tests := []struct {
		typeNum uint8
		want    UnitType
		idr     bool
	}{
		{1, UnitTypeP, false},
		{5, UnitTypeIDR, true},
		{6, UnitTypeUnknown, false},
		{7, UnitTypeSPS, false},
		{8, UnitTypePPS, false},
		{9, UnitTypeUnknown, false},
		{31, UnitTypeUnknown, false},
	}
	for _, test := range tests {
		u := newNALUnit(0, 4, 10, 3, test.typeNum)
		if u.Type != test.want {
			t.Errorf("type %d classified as %v, want %v", test.typeNum, u.Type, test.want)
		}
		if u.IDRPicFlag != test.idr {
			t.Errorf("type %d IDRPicFlag = %v, want %v", test.typeNum, u.IDRPicFlag, test.idr)
		}
	}
}
