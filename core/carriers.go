package core

import (
	"errors"
	"fmt"
)

// AccessType tags which MAC scheme a CarriersGroup serves.
type AccessType uint8

const (
	AccessTypeDama AccessType = iota
	AccessTypeAloha
	AccessTypeScpc
	AccessTypeVcm
)

// ErrEmptyCategory is returned when a TerminalCategory is built with no
// carrier groups, or whose groups carry no MODCODs between them.
var ErrEmptyCategory = errors.New("terminal category has no usable carriers")

// ErrModcodMismatch marks a terminal assigned to a carrier whose MODCOD
// it cannot decode, per spec's Allocation error kind.
var ErrModcodMismatch = errors.New("modcod mismatch")

// CarriersGroup is a partition of return-link spectrum: a fixed number
// of identical carriers at a given symbol rate, all restricted to the
// same ordered set of allowed MODCODs. RemainingCapacityPktpf is the
// only mutable field; it is reset every superframe by ResetCapacity.
type CarriersGroup struct {
	CarriersID       uint16
	SymbolRateBauds  float64
	CarriersCount    uint16
	AllowedModcodIDs []uint8 // ordered low -> high
	Ratio            float64
	AccessType       AccessType

	// SymbolDuration is the per-superframe symbol budget for one carrier,
	// derived once at construction from SuperframeDurationMs and
	// FramesPerSuperframe (cached rather than recomputed every
	// superframe).
	SymbolDuration float64

	conv *PerCarrierUnitConverter

	remainingCapacityPktpf uint32
	initialCapacityPktpf   uint32
}

// NewCarriersGroup builds a group with its symbol budget cached from the
// superframe timing. initialModcodID seeds the converter used for Step A
// capacity initialization; UpdateModcod can change it later (S5, MODCOD
// downgrade mid-run).
func NewCarriersGroup(carriersID uint16, symbolRateBauds float64, carriersCount uint16, allowedModcodIDs []uint8, ratio float64, accessType AccessType, base *UnitConverter, initialModcodID uint8, superframeDurationMs float64, framesPerSuperframe uint32) (*CarriersGroup, error) {
	if len(allowedModcodIDs) == 0 {
		return nil, fmt.Errorf("%w: carriers group %d has no allowed modcods", ErrEmptyCategory, carriersID)
	}
	// SymbolDuration is the per-carrier symbol budget for one superframe:
	// symbol rate (baud) times one frame's duration (s), times the
	// number of frames per superframe.
	frameDurationSec := (superframeDurationMs / float64(framesPerSuperframe)) / 1000
	symbolDuration := symbolRateBauds * frameDurationSec * float64(framesPerSuperframe)

	g := &CarriersGroup{
		CarriersID:       carriersID,
		SymbolRateBauds:  symbolRateBauds,
		CarriersCount:    carriersCount,
		AllowedModcodIDs: append([]uint8(nil), allowedModcodIDs...),
		Ratio:            ratio,
		AccessType:       accessType,
		SymbolDuration:   symbolDuration,
		conv:             NewPerCarrierUnitConverter(base, initialModcodID),
	}
	return g, nil
}

// Converter exposes the group's per-carrier unit converter, used by the
// DAMA controller to convert terminal requests to/from packets at this
// group's current MODCOD.
func (g *CarriersGroup) Converter() *PerCarrierUnitConverter { return g.conv }

// UpdateModcod changes the MODCOD used by this group's capacity
// conversions, e.g. when FmtSimulation reports a CNI change for a
// single-MODCOD (non-VCM) carrier.
func (g *CarriersGroup) UpdateModcod(modcodID uint8) {
	g.conv.SetModcod(modcodID)
}

// SupportsModcod reports whether modcodID is in AllowedModcodIDs.
func (g *CarriersGroup) SupportsModcod(modcodID uint8) bool {
	for _, id := range g.AllowedModcodIDs {
		if id == modcodID {
			return true
		}
	}
	return false
}

// ResetCapacity is Step A of the DAMA algorithm: convert the carrier's
// total per-superframe symbol budget (across all CarriersCount carriers)
// to packets at the carrier's current MODCOD, and reset
// RemainingCapacityPktpf to that value.
func (g *CarriersGroup) ResetCapacity() (uint32, error) {
	totalSym := uint64(g.SymbolDuration * float64(g.CarriersCount))
	pkt, err := g.conv.SymCapacityToPktpf(totalSym)
	if err != nil {
		return 0, err
	}
	g.initialCapacityPktpf = pkt
	g.remainingCapacityPktpf = pkt
	return pkt, nil
}

// RemainingCapacityPktpf is the capacity left to allocate this
// superframe.
func (g *CarriersGroup) RemainingCapacityPktpf() uint32 { return g.remainingCapacityPktpf }

// InitialCapacityPktpf is the capacity this superframe started with,
// used by invariant checks (testable property 1: capacity conservation).
func (g *CarriersGroup) InitialCapacityPktpf() uint32 { return g.initialCapacityPktpf }

// Consume deducts n packets from the remaining capacity; it saturates at
// zero rather than going negative, and returns how many packets were
// actually deducted (less than n when the full amount was not available).
func (g *CarriersGroup) Consume(n uint32) (consumed uint32) {
	if n <= g.remainingCapacityPktpf {
		g.remainingCapacityPktpf -= n
		return n
	}
	consumed = g.remainingCapacityPktpf
	g.remainingCapacityPktpf = 0
	return consumed
}

// TerminalCategory groups CarriersGroups of equivalent access class and
// owns the TerminalContexts assigned to it. A terminal belongs to
// exactly one category per access type; categories are stable once
// terminals have logged on (re-shaping requires a full reset, per
// spec's open-question resolution).
type TerminalCategory struct {
	Label     string
	groups    []*CarriersGroup
	terminals map[uint16]*TerminalContext
}

// NewTerminalCategory builds a category from its carrier groups. It
// fails ErrEmptyCategory if the union of AllowedModcodIDs across groups
// is empty.
func NewTerminalCategory(label string, groups []*CarriersGroup) (*TerminalCategory, error) {
	union := map[uint8]struct{}{}
	for _, g := range groups {
		for _, id := range g.AllowedModcodIDs {
			union[id] = struct{}{}
		}
	}
	if len(union) == 0 {
		return nil, fmt.Errorf("%w: category %q", ErrEmptyCategory, label)
	}
	return &TerminalCategory{
		Label:     label,
		groups:    groups,
		terminals: make(map[uint16]*TerminalContext),
	}, nil
}

// Groups returns the carrier groups owned by this category.
func (c *TerminalCategory) Groups() []*CarriersGroup { return c.groups }

// AddTerminal assigns a terminal to this category, replacing any prior
// assignment under the same tal_id.
func (c *TerminalCategory) AddTerminal(t *TerminalContext) {
	t.CategoryLabel = c.Label
	c.terminals[t.TalID] = t
}

// RemoveTerminal drops a terminal on logoff.
func (c *TerminalCategory) RemoveTerminal(talID uint16) {
	delete(c.terminals, talID)
}

// Terminal looks up a terminal by tal_id within this category.
func (c *TerminalCategory) Terminal(talID uint16) (*TerminalContext, error) {
	t, ok := c.terminals[talID]
	if !ok {
		return nil, fmt.Errorf("%w: tal_id %d", ErrUnknownTerminal, talID)
	}
	return t, nil
}

// Terminals returns a snapshot slice of all terminals in this category.
func (c *TerminalCategory) Terminals() []*TerminalContext {
	out := make([]*TerminalContext, 0, len(c.terminals))
	for _, t := range c.terminals {
		out = append(out, t)
	}
	return out
}

// TerminalsInCarriersGroup returns the terminals currently bound to the
// given carrier group, ordered by ascending tal_id for deterministic
// iteration.
func (c *TerminalCategory) TerminalsInCarriersGroup(carriersID uint16) []*TerminalContext {
	out := make([]*TerminalContext, 0, len(c.terminals))
	for _, t := range c.terminals {
		if t.CarrierID == carriersID {
			out = append(out, t)
		}
	}
	sortTerminalsByTalID(out)
	return out
}

func sortTerminalsByTalID(ts []*TerminalContext) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j-1].TalID > ts[j].TalID; j-- {
			ts[j-1], ts[j] = ts[j], ts[j-1]
		}
	}
}

// ResetCapacities resets RemainingCapacityPktpf on every carrier group
// ahead of a new DAMA pass.
func (c *TerminalCategory) ResetCapacities() error {
	for _, g := range c.groups {
		if _, err := g.ResetCapacity(); err != nil {
			return err
		}
	}
	return nil
}
