// Package config defines the read-only configuration surface the MAC
// core consumes (spec section 6): it is opaque to the core itself — no
// file parsing lives in this module, only the interface and a static,
// struct-backed implementation for tests and examples, grounded on
// core/scenario_loader.go's "parsed-document summary" shape.
package config

import "github.com/lephus/opensand/core"

// CarrierConfig is one carrier group's static configuration, as loaded
// from a carriers plan.
type CarrierConfig struct {
	ID               uint16
	SymbolRateBauds  float64
	CarriersCount    uint16
	AllowedModcodIDs []uint8
	Ratio            float64
	AccessType       core.AccessType
	InitialModcodID  uint8
}

// SpotCarriersPlan is the carriers plan for one spot (satellite beam).
type SpotCarriersPlan struct {
	SpotID   uint16
	Carriers []CarrierConfig
}

// DamaParams holds the GW-wide DAMA parameters named in spec section 6.
type DamaParams struct {
	FcaKbps     float64
	MaxRbdcKbps float64
	MaxVbdcPkt  uint32
}

// BackoffAlgorithm selects which Slotted-Aloha backoff variant a terminal
// uses.
type BackoffAlgorithm uint8

const (
	BackoffBeb BackoffAlgorithm = iota
	BackoffEied
)

// SlottedAlohaParams holds the per-terminal Slotted-Aloha parameters
// named in spec section 6.
type SlottedAlohaParams struct {
	NbReplicas           uint8
	TimeoutSuperframes   uint32
	NbMaxRetransmissions int
	NbMaxPackets         int
	SlotsPerSuperframe   uint16
	Backoff              BackoffAlgorithm
	BackoffCwMin         uint32
	BackoffCwMax         uint32
	BackoffMultiple      float64
}

// CarrierTags names the integer carrier id tags (spec section 6) the
// scheduler routes outgoing frames by, for one spot.
type CarrierTags struct {
	LogonID   uint8
	ControlID uint8
	DataInST  uint8
	DataInGW  uint8
	DataOutST uint8
	DataOutGW uint8
}

// ReadOnly is the configuration surface consumed by the core. A host
// binary is responsible for producing one (from YAML, JSON, flags,
// whatever fits); this module only ever reads it.
type ReadOnly interface {
	SuperframeDurationMs() float64
	FramesPerSuperframe() uint32
	PacketLengthBytes() uint32

	SpotIDs() []uint16
	CarriersPlan(spotID uint16) (SpotCarriersPlan, bool)
	CarrierTags(spotID uint16) (CarrierTags, bool)

	Dama() DamaParams
	SlottedAloha() SlottedAlohaParams

	// ModcodTablePath returns the configured file path for family's
	// MODCOD table; the core never reads this path itself (loading a
	// ModcodTable from disk is the host binary's job, out of scope for
	// this module per spec.md section 1).
	ModcodTablePath(family core.ModcodFamily) (string, bool)
}

// Static is a plain struct-backed ReadOnly, for tests and examples.
type Static struct {
	SuperframeMs   float64
	FramesPerSf    uint32
	PacketLenBytes uint32

	Plans ModcodTablePaths
	Tags  map[uint16]CarrierTags
	Spots map[uint16]SpotCarriersPlan

	DamaParamsValue         DamaParams
	SlottedAlohaParamsValue SlottedAlohaParams
}

// ModcodTablePaths maps a MODCOD family to its configured table path.
type ModcodTablePaths map[core.ModcodFamily]string

// NewStatic builds a Static configuration from its pieces.
func NewStatic(superframeMs float64, framesPerSf uint32, packetLenBytes uint32, spots map[uint16]SpotCarriersPlan, tags map[uint16]CarrierTags, dama DamaParams, saloha SlottedAlohaParams, modcodPaths ModcodTablePaths) *Static {
	return &Static{
		SuperframeMs:            superframeMs,
		FramesPerSf:             framesPerSf,
		PacketLenBytes:          packetLenBytes,
		Spots:                   spots,
		Tags:                    tags,
		DamaParamsValue:         dama,
		SlottedAlohaParamsValue: saloha,
		Plans:                   modcodPaths,
	}
}

func (s *Static) SuperframeDurationMs() float64 { return s.SuperframeMs }
func (s *Static) FramesPerSuperframe() uint32   { return s.FramesPerSf }
func (s *Static) PacketLengthBytes() uint32     { return s.PacketLenBytes }

func (s *Static) SpotIDs() []uint16 {
	ids := make([]uint16, 0, len(s.Spots))
	for id := range s.Spots {
		ids = append(ids, id)
	}
	return ids
}

func (s *Static) CarriersPlan(spotID uint16) (SpotCarriersPlan, bool) {
	plan, ok := s.Spots[spotID]
	return plan, ok
}

func (s *Static) CarrierTags(spotID uint16) (CarrierTags, bool) {
	tags, ok := s.Tags[spotID]
	return tags, ok
}

func (s *Static) Dama() DamaParams { return s.DamaParamsValue }

func (s *Static) SlottedAloha() SlottedAlohaParams { return s.SlottedAlohaParamsValue }

func (s *Static) ModcodTablePath(family core.ModcodFamily) (string, bool) {
	path, ok := s.Plans[family]
	return path, ok
}
