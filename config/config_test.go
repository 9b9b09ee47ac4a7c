package config

import (
	"testing"

	"github.com/lephus/opensand/core"
)

func testStatic(t *testing.T) *Static {
	t.Helper()
	spots := map[uint16]SpotCarriersPlan{
		1: {
			SpotID: 1,
			Carriers: []CarrierConfig{
				{ID: 1, SymbolRateBauds: 4e6, CarriersCount: 4, AllowedModcodIDs: []uint8{1, 2}, Ratio: 1.0, AccessType: core.AccessTypeDama, InitialModcodID: 1},
			},
		},
	}
	tags := map[uint16]CarrierTags{
		1: {LogonID: 1, ControlID: 2, DataInST: 3, DataInGW: 4, DataOutST: 5, DataOutGW: 6},
	}
	dama := DamaParams{FcaKbps: 128, MaxRbdcKbps: 512, MaxVbdcPkt: 100}
	saloha := SlottedAlohaParams{
		NbReplicas: 3, TimeoutSuperframes: 2, NbMaxRetransmissions: 10,
		NbMaxPackets: 100, SlotsPerSuperframe: 16, Backoff: BackoffEied,
		BackoffCwMin: 4, BackoffCwMax: 64, BackoffMultiple: 2.0,
	}
	modcodPaths := ModcodTablePaths{
		core.ModcodFamilyRcs2: "/etc/opensand/modcod_rcs2.txt",
		core.ModcodFamilyS2:   "/etc/opensand/modcod_s2.txt",
	}
	return NewStatic(26.5, 1, 1500, spots, tags, dama, saloha, modcodPaths)
}

func TestStaticTimingAndPacketLength(t *testing.T) {
	s := testStatic(t)
	if got := s.SuperframeDurationMs(); got != 26.5 {
		t.Fatalf("SuperframeDurationMs() = %v, want 26.5", got)
	}
	if got := s.FramesPerSuperframe(); got != 1 {
		t.Fatalf("FramesPerSuperframe() = %v, want 1", got)
	}
	if got := s.PacketLengthBytes(); got != 1500 {
		t.Fatalf("PacketLengthBytes() = %v, want 1500", got)
	}
}

func TestStaticSpotIDs(t *testing.T) {
	s := testStatic(t)
	ids := s.SpotIDs()
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("SpotIDs() = %v, want [1]", ids)
	}
}

func TestStaticCarriersPlanFound(t *testing.T) {
	s := testStatic(t)
	plan, ok := s.CarriersPlan(1)
	if !ok {
		t.Fatalf("CarriersPlan(1) not found")
	}
	if len(plan.Carriers) != 1 || plan.Carriers[0].ID != 1 {
		t.Fatalf("CarriersPlan(1) = %#v", plan)
	}
}

func TestStaticCarriersPlanMissing(t *testing.T) {
	s := testStatic(t)
	if _, ok := s.CarriersPlan(99); ok {
		t.Fatalf("CarriersPlan(99) found, want not found")
	}
}

func TestStaticCarrierTags(t *testing.T) {
	s := testStatic(t)
	tags, ok := s.CarrierTags(1)
	if !ok {
		t.Fatalf("CarrierTags(1) not found")
	}
	if tags.LogonID != 1 || tags.DataOutGW != 6 {
		t.Fatalf("CarrierTags(1) = %#v", tags)
	}
	if _, ok := s.CarrierTags(99); ok {
		t.Fatalf("CarrierTags(99) found, want not found")
	}
}

func TestStaticDamaAndSlottedAloha(t *testing.T) {
	s := testStatic(t)
	dama := s.Dama()
	if dama.FcaKbps != 128 || dama.MaxRbdcKbps != 512 || dama.MaxVbdcPkt != 100 {
		t.Fatalf("Dama() = %#v", dama)
	}
	saloha := s.SlottedAloha()
	if saloha.NbReplicas != 3 || saloha.Backoff != BackoffEied || saloha.SlotsPerSuperframe != 16 {
		t.Fatalf("SlottedAloha() = %#v", saloha)
	}
}

func TestStaticModcodTablePath(t *testing.T) {
	s := testStatic(t)
	path, ok := s.ModcodTablePath(core.ModcodFamilyRcs2)
	if !ok || path != "/etc/opensand/modcod_rcs2.txt" {
		t.Fatalf("ModcodTablePath(Rcs2) = %q, %v", path, ok)
	}
	if _, ok := s.ModcodTablePath(core.ModcodFamily(99)); ok {
		t.Fatalf("ModcodTablePath(99) found, want not found")
	}
}

func TestStaticImplementsReadOnly(t *testing.T) {
	var _ ReadOnly = testStatic(t)
}
