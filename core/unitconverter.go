package core

import (
	"fmt"
	"math"
)

// UnitConverter converts between kbit/s, packets-per-superframe and
// symbols for a fixed packet length and superframe duration. Rounding
// always floors to whole packets; the lost fraction is returned
// separately as a kbps-denominated credit, bounded by one packet's
// worth of rate (pktpf_to_kbps(1)).
type UnitConverter struct {
	modcods             *ModcodTable
	superframeDurationMs float64
	packetLengthBytes   uint32
}

// NewUnitConverter builds a converter for a fixed packet length and
// superframe duration. modcods is used to resolve spectral efficiency
// for symbol-denominated conversions.
func NewUnitConverter(modcods *ModcodTable, superframeDurationMs float64, packetLengthBytes uint32) (*UnitConverter, error) {
	if superframeDurationMs <= 0 {
		return nil, fmt.Errorf("unit converter: superframe duration must be positive, got %v", superframeDurationMs)
	}
	if packetLengthBytes == 0 {
		return nil, fmt.Errorf("unit converter: packet length must be positive")
	}
	return &UnitConverter{
		modcods:             modcods,
		superframeDurationMs: superframeDurationMs,
		packetLengthBytes:   packetLengthBytes,
	}, nil
}

func (c *UnitConverter) packetKbits() float64 {
	return float64(c.packetLengthBytes) * 8 / 1000
}

// KbpsToPktpf floors rateKbps to whole packets-per-superframe, returning
// the leftover rate (< one packet's worth) as residueKbps. modcodID is
// accepted for symmetry with PktpfToKbps/the DAMA call sites but does not
// affect the result: packet length is fixed by configuration, not by
// MODCOD (only the symbol-denominated conversions below vary by MODCOD).
func (c *UnitConverter) KbpsToPktpf(rateKbps float64, modcodID uint8) (pkt uint32, residueKbps float64, err error) {
	if c.modcods != nil {
		if _, err := c.modcods.Def(modcodID); err != nil {
			return 0, 0, err
		}
	}
	if rateKbps <= 0 {
		return 0, 0, nil
	}
	kbitsPerSf := rateKbps * c.superframeDurationMs / 1000
	pktf := math.Floor(kbitsPerSf / c.packetKbits())
	residueKbits := kbitsPerSf - pktf*c.packetKbits()
	residueKbps = residueKbits * 1000 / c.superframeDurationMs
	return uint32(pktf), residueKbps, nil
}

// PktpfToKbps converts a whole packet count per superframe back to kbps.
func (c *UnitConverter) PktpfToKbps(pkt uint32, modcodID uint8) (float64, error) {
	if c.modcods != nil {
		if _, err := c.modcods.Def(modcodID); err != nil {
			return 0, err
		}
	}
	kbitsPerSf := float64(pkt) * c.packetKbits()
	return kbitsPerSf * 1000 / c.superframeDurationMs, nil
}

// SymToKbits converts a symbol count to kbits using modcodID's spectral
// efficiency.
func (c *UnitConverter) SymToKbits(sym uint64, modcodID uint8) (float64, error) {
	def, err := c.modcods.Def(modcodID)
	if err != nil {
		return 0, err
	}
	return float64(sym) * def.SpectralEfficiencyBpsPerSym / 1000, nil
}

// PktToKbits converts a packet count to kbits using the fixed packet
// length; modcodID is validated but, as with KbpsToPktpf, does not alter
// the fixed-packet-length arithmetic.
func (c *UnitConverter) PktToKbits(pkt uint32, modcodID uint8) (float64, error) {
	if c.modcods != nil {
		if _, err := c.modcods.Def(modcodID); err != nil {
			return 0, err
		}
	}
	return float64(pkt) * c.packetKbits(), nil
}

// PktpfForOnePacket returns pktpf_to_kbps(1), the credit-bound cited by
// spec invariant 3 ("0 <= rbdc_credit_kbps < pktpf_to_kbps(1)").
func (c *UnitConverter) PktpfForOnePacket() float64 {
	return c.packetKbits() * 1000 / c.superframeDurationMs
}

// PerCarrierUnitConverter adapts UnitConverter to a carrier whose MODCOD
// (and therefore symbol-to-kbit rate) can change between superframes,
// e.g. under DRA. SymCapacityToPktpf recomputes the carrier's packet
// budget from its current MODCOD without requiring the owning
// TerminalCategory/CarriersGroup to be reinitialized.
type PerCarrierUnitConverter struct {
	*UnitConverter
	currentModcodID uint8
}

// NewPerCarrierUnitConverter wraps base for a carrier currently using
// modcodID.
func NewPerCarrierUnitConverter(base *UnitConverter, modcodID uint8) *PerCarrierUnitConverter {
	return &PerCarrierUnitConverter{UnitConverter: base, currentModcodID: modcodID}
}

// CurrentModcod returns the MODCOD id currently used for conversions.
func (c *PerCarrierUnitConverter) CurrentModcod() uint8 { return c.currentModcodID }

// SetModcod updates the MODCOD used by subsequent conversions, e.g. when
// FmtSimulation reports a CNI-driven downgrade.
func (c *PerCarrierUnitConverter) SetModcod(modcodID uint8) {
	c.currentModcodID = modcodID
}

// SymCapacityToPktpf converts a carrier's per-superframe symbol budget to
// packets, using the carrier's current MODCOD.
func (c *PerCarrierUnitConverter) SymCapacityToPktpf(symCapacity uint64) (uint32, error) {
	kbits, err := c.SymToKbits(symCapacity, c.currentModcodID)
	if err != nil {
		return 0, err
	}
	pkt, _, err := c.KbpsToPktpf(kbits*1000/c.superframeDurationMs, c.currentModcodID)
	if err != nil {
		return 0, err
	}
	return pkt, nil
}
