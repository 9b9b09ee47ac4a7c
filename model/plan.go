package model

// TerminalAllocation is one terminal's slice of a TimePlan: the carrier,
// slot range, and MODCOD it should use for one superframe.
type TerminalAllocation struct {
	TalID     uint16
	CarrierID uint8
	FirstSlot uint16
	NbSlots   uint16
	ModcodID  uint8
}

// TimePlan is the per-superframe Terminal Time-Plan (TTP): for each
// terminal with return-link capacity this superframe, its carrier and
// slot assignment. Slot intervals for a given carrier are disjoint.
type TimePlan struct {
	SuperframeNumber uint32
	// PlanID correlates a TTP with log lines and test assertions across
	// the pipeline; it has no meaning on the wire.
	PlanID      string
	Assignments map[uint16]TerminalAllocation
}

// NewTimePlan returns an empty plan for the given superframe number.
func NewTimePlan(superframeNumber uint32) *TimePlan {
	return &TimePlan{
		SuperframeNumber: superframeNumber,
		Assignments:      make(map[uint16]TerminalAllocation),
	}
}
