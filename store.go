/*
DESCRIPTION
  store.go provides the parameter set store consulted when decoding slice
  headers.
*/

package h264nal

// Identifier bounds from sections 7.4.2.1 and 7.4.2.2.
const (
	maxSPSID = 31
	maxPPSID = 255
)

// paramSetStore holds the most recently decoded SPS and PPS records indexed
// by their ids. Insertion replaces any prior record with the same id; there
// is no eviction.
type paramSetStore struct {
	sps map[uint32]*SPS
	pps map[uint32]*PPS
}

func newParamSetStore() paramSetStore {
	return paramSetStore{
		sps: make(map[uint32]*SPS, maxSPSID+1),
		pps: make(map[uint32]*PPS, maxPPSID+1),
	}
}

func (s *paramSetStore) setSPS(sps *SPS)       { s.sps[sps.SPSID] = sps }
func (s *paramSetStore) setPPS(pps *PPS)       { s.pps[pps.PPSID] = pps }
func (s *paramSetStore) getSPS(id uint32) *SPS { return s.sps[id] }
func (s *paramSetStore) getPPS(id uint32) *PPS { return s.pps[id] }

// SPS returns the stored sequence parameter set with the given id, or nil.
func (p *Parser) SPS(id uint32) *SPS { return p.store.getSPS(id) }

// PPS returns the stored picture parameter set with the given id, or nil.
func (p *Parser) PPS(id uint32) *PPS { return p.store.getPPS(id) }
