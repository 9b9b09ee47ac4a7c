package model

// PacketKey identifies a logical Slotted-Aloha packet (the set of its
// replicas): (tal_id, base_id) from spec.md section 3.
type PacketKey struct {
	TalID  uint16
	BaseID uint64
}

// ReplicaKey identifies one specific replica transmission of a packet.
type ReplicaKey struct {
	PacketKey
	ReplicaID uint8
}

// QosClass orders DvbFifo queues; lower values are higher priority.
type QosClass uint8

// SlottedAlohaPacket is a logical random-access packet as tracked by the
// ST (pending/retransmission state) or by the NCC (replica resolution).
type SlottedAlohaPacket struct {
	TalID               uint16
	Qos                 QosClass
	BaseID              uint64
	NbReplicas          uint8
	TimestampSuperframe uint32
	Payload             []byte
}

// Key returns the logical packet key for p.
func (p *SlottedAlohaPacket) Key() PacketKey {
	return PacketKey{TalID: p.TalID, BaseID: p.BaseID}
}
