package core

import "errors"

// ErrUnknownTerminal is returned when a request references a tal_id that
// has no TerminalContext, per spec's Allocation error kind.
var ErrUnknownTerminal = errors.New("unknown terminal")

// TerminalContext is per-terminal DAMA state, owned exclusively by the
// GW scheduling thread (no mutex: cross-thread access happens only via
// message passing, per the concurrency model).
type TerminalContext struct {
	TalID         uint16
	CategoryLabel string
	// CarrierID is the CarriersGroup this terminal is currently bound to
	// within its category. A terminal belongs to exactly one carrier
	// group per access type (spec's category/carrier invariant).
	CarrierID uint16

	CurrentInputModcodID  uint8
	CurrentOutputModcodID uint8

	// CraKbps is the static continuous rate assignment; never negotiated
	// per superframe.
	CraKbps float64

	MaxRbdcKbps float64
	MaxVbdcPkt  uint32

	RbdcRequestKbps float64
	VbdcRequestPkt  uint32

	RbdcAllocPktpf uint32
	VbdcAllocPkt   uint32
	FcaAllocPktpf  uint32

	// RbdcCreditKbps is the fractional rate carried over from a fair-share
	// floor division; bounded to [0, pktpfForOnePacket) by the caller
	// (the DAMA controller), which is the only writer.
	RbdcCreditKbps float64

	Scpc bool
}

// NewTerminalContext builds a context for a newly logged-on terminal.
func NewTerminalContext(talID uint16, categoryLabel string, craKbps, maxRbdcKbps float64, maxVbdcPkt uint32) *TerminalContext {
	return &TerminalContext{
		TalID:         talID,
		CategoryLabel: categoryLabel,
		CraKbps:       craKbps,
		MaxRbdcKbps:   maxRbdcKbps,
		MaxVbdcPkt:    maxVbdcPkt,
	}
}

// SetRbdcRequest clamps and stores a new RBDC request, per the invariant
// that rbdc_request_kbps <= max_rbdc_kbps.
func (t *TerminalContext) SetRbdcRequest(rateKbps float64) {
	if rateKbps < 0 {
		rateKbps = 0
	}
	if rateKbps > t.MaxRbdcKbps {
		rateKbps = t.MaxRbdcKbps
	}
	t.RbdcRequestKbps = rateKbps
}

// SetVbdcRequest clamps and stores a new VBDC request, per the invariant
// that vbdc_request_pkt <= max_vbdc_pkt.
func (t *TerminalContext) SetVbdcRequest(pkt uint32) {
	if pkt > t.MaxVbdcPkt {
		pkt = t.MaxVbdcPkt
	}
	t.VbdcRequestPkt = pkt
}

// ResetAllocations zeroes this superframe's allocations ahead of a new
// DAMA pass; RbdcCreditKbps survives across superframes.
func (t *TerminalContext) ResetAllocations() {
	t.RbdcAllocPktpf = 0
	t.VbdcAllocPkt = 0
	t.FcaAllocPktpf = 0
}

// TotalAllocPktpf returns rbdc_alloc + vbdc_alloc + fca_alloc, checked by
// the DAMA controller against the carrier's max-allocation-per-terminal
// bound.
func (t *TerminalContext) TotalAllocPktpf() uint32 {
	return t.RbdcAllocPktpf + t.VbdcAllocPkt + t.FcaAllocPktpf
}
