package core

import "testing"

func testUnitConverter(t *testing.T) *UnitConverter {
	t.Helper()
	modcods, err := NewModcodTable(ModcodFamilyRcs2, []ModcodDef{
		{ID: 1, SpectralEfficiencyBpsPerSym: 1.0, RequiredEsn0DB: 3.0},
		{ID: 2, SpectralEfficiencyBpsPerSym: 2.0, RequiredEsn0DB: 8.0},
	})
	if err != nil {
		t.Fatalf("NewModcodTable: %v", err)
	}
	conv, err := NewUnitConverter(modcods, 26.5, 1500) // packetKbits = 12
	if err != nil {
		t.Fatalf("NewUnitConverter: %v", err)
	}
	return conv
}

func TestNewUnitConverterRejectsNonPositiveSuperframeDuration(t *testing.T) {
	modcods, _ := NewModcodTable(ModcodFamilyRcs2, []ModcodDef{{ID: 1, SpectralEfficiencyBpsPerSym: 1.0, RequiredEsn0DB: 3.0}})
	if _, err := NewUnitConverter(modcods, 0, 1500); err == nil {
		t.Fatalf("expected an error for a zero superframe duration")
	}
}

func TestNewUnitConverterRejectsZeroPacketLength(t *testing.T) {
	modcods, _ := NewModcodTable(ModcodFamilyRcs2, []ModcodDef{{ID: 1, SpectralEfficiencyBpsPerSym: 1.0, RequiredEsn0DB: 3.0}})
	if _, err := NewUnitConverter(modcods, 26.5, 0); err == nil {
		t.Fatalf("expected an error for a zero packet length")
	}
}

func TestKbpsToPktpfFloorsAndReturnsResidue(t *testing.T) {
	conv := testUnitConverter(t)
	// kbitsPerSf = 40*26.5/1000 = 1.06, packetKbits = 12 -> pktf = 0, residue = 1.06 kbit -> kbps.
	pkt, residueKbps, err := conv.KbpsToPktpf(40, 1)
	if err != nil {
		t.Fatalf("KbpsToPktpf: %v", err)
	}
	if pkt != 0 {
		t.Fatalf("pkt = %d, want 0", pkt)
	}
	if residueKbps <= 0 {
		t.Fatalf("residueKbps = %v, want positive leftover", residueKbps)
	}
}

func TestKbpsToPktpfExactMultipleLeavesNoResidue(t *testing.T) {
	conv := testUnitConverter(t)
	// packetKbits = 12; kbitsPerSf must equal exactly 12*N. With
	// superframeDurationMs = 26.5, rateKbps = 12*1000/26.5 gives kbitsPerSf = 12 exactly.
	rateKbps := 12 * 1000.0 / 26.5
	pkt, residueKbps, err := conv.KbpsToPktpf(rateKbps, 1)
	if err != nil {
		t.Fatalf("KbpsToPktpf: %v", err)
	}
	if pkt != 1 {
		t.Fatalf("pkt = %d, want 1", pkt)
	}
	if residueKbps > 1e-9 {
		t.Fatalf("residueKbps = %v, want ~0", residueKbps)
	}
}

func TestKbpsToPktpfZeroOrNegativeRateIsZero(t *testing.T) {
	conv := testUnitConverter(t)
	pkt, residue, err := conv.KbpsToPktpf(0, 1)
	if err != nil || pkt != 0 || residue != 0 {
		t.Fatalf("KbpsToPktpf(0) = %d, %v, %v, want 0, 0, nil", pkt, residue, err)
	}
	pkt, residue, err = conv.KbpsToPktpf(-5, 1)
	if err != nil || pkt != 0 || residue != 0 {
		t.Fatalf("KbpsToPktpf(-5) = %d, %v, %v, want 0, 0, nil", pkt, residue, err)
	}
}

func TestKbpsToPktpfRejectsUnknownModcod(t *testing.T) {
	conv := testUnitConverter(t)
	if _, _, err := conv.KbpsToPktpf(100, 99); err == nil {
		t.Fatalf("expected an error for an unknown modcod id")
	}
}

func TestPktpfToKbpsIsTheInverseOfKbpsToPktpfOnExactMultiples(t *testing.T) {
	conv := testUnitConverter(t)
	rateKbps := 12 * 1000.0 / 26.5
	pkt, _, err := conv.KbpsToPktpf(rateKbps, 1)
	if err != nil {
		t.Fatalf("KbpsToPktpf: %v", err)
	}
	back, err := conv.PktpfToKbps(pkt, 1)
	if err != nil {
		t.Fatalf("PktpfToKbps: %v", err)
	}
	if diff := back - rateKbps; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("PktpfToKbps(KbpsToPktpf(x)) = %v, want %v", back, rateKbps)
	}
}

func TestSymToKbitsScalesWithSpectralEfficiency(t *testing.T) {
	conv := testUnitConverter(t)
	low, err := conv.SymToKbits(1000, 1) // eff 1.0
	if err != nil {
		t.Fatalf("SymToKbits(modcod1): %v", err)
	}
	high, err := conv.SymToKbits(1000, 2) // eff 2.0
	if err != nil {
		t.Fatalf("SymToKbits(modcod2): %v", err)
	}
	if high != 2*low {
		t.Fatalf("SymToKbits at eff 2.0 = %v, want double eff 1.0's %v", high, low)
	}
}

func TestPktToKbitsScalesWithPacketCount(t *testing.T) {
	conv := testUnitConverter(t)
	kbits, err := conv.PktToKbits(5, 1)
	if err != nil {
		t.Fatalf("PktToKbits: %v", err)
	}
	if kbits != 60 { // 5 packets * 12 kbits
		t.Fatalf("PktToKbits(5) = %v, want 60", kbits)
	}
}

func TestPktpfForOnePacketMatchesPktpfToKbpsOfOne(t *testing.T) {
	conv := testUnitConverter(t)
	bound := conv.PktpfForOnePacket()
	kbps, err := conv.PktpfToKbps(1, 1)
	if err != nil {
		t.Fatalf("PktpfToKbps(1): %v", err)
	}
	if bound != kbps {
		t.Fatalf("PktpfForOnePacket() = %v, want equal to PktpfToKbps(1) = %v", bound, kbps)
	}
}

func TestPerCarrierUnitConverterTracksItsOwnModcod(t *testing.T) {
	base := testUnitConverter(t)
	pc := NewPerCarrierUnitConverter(base, 1)
	if pc.CurrentModcod() != 1 {
		t.Fatalf("CurrentModcod() = %d, want 1", pc.CurrentModcod())
	}
	pc.SetModcod(2)
	if pc.CurrentModcod() != 2 {
		t.Fatalf("CurrentModcod() after SetModcod(2) = %d, want 2", pc.CurrentModcod())
	}
}

func TestSymCapacityToPktpfUsesTheCurrentModcod(t *testing.T) {
	base := testUnitConverter(t)
	pc := NewPerCarrierUnitConverter(base, 1)
	atLow, err := pc.SymCapacityToPktpf(100000)
	if err != nil {
		t.Fatalf("SymCapacityToPktpf (modcod 1): %v", err)
	}

	pc.SetModcod(2)
	atHigh, err := pc.SymCapacityToPktpf(100000)
	if err != nil {
		t.Fatalf("SymCapacityToPktpf (modcod 2): %v", err)
	}

	if atHigh <= atLow {
		t.Fatalf("capacity at modcod 2 (%d) <= capacity at modcod 1 (%d), want strictly more at higher spectral efficiency", atHigh, atLow)
	}
}
