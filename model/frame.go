package model

// MessageType tags the variant carried by a DvbFrame.
type MessageType uint8

const (
	MessageTypeDvbRcs MessageType = iota + 1
	MessageTypeBBFrame
	MessageTypeSof
	MessageTypeLogonReq
	MessageTypeLogonResp
	MessageTypeSac
	MessageTypeTtp
	MessageTypeCsc
	MessageTypeSlottedAlohaData
	MessageTypeSlottedAlohaAck
)

// NoCni marks a FrameHeader.CniCentibels as not-applicable, per the wire
// format in spec.md section 6.
const NoCni int16 = -32768

// FrameHeader is the common header shared by every DvbFrame variant.
// Multi-byte fields are logically little-endian when serialized; the core
// itself only ever exchanges Go values in-process (no byte-level codec is
// required, since transport is out of scope).
type FrameHeader struct {
	MessageType    MessageType
	CarrierID      uint8
	SpotID         uint16
	PayloadLength  uint16
	CniCentibels   int16
}

// DvbFrame is the tagged-variant frame type flowing between blocks.
// Callers dispatch on Kind() with an explicit type switch; there is no
// virtual-call hierarchy.
type DvbFrame interface {
	Kind() MessageType
	Header() FrameHeader
}

// DvbRcsFrame carries return-link user data for one terminal/carrier.
type DvbRcsFrame struct {
	Hdr     FrameHeader
	TalID   uint16
	Payload []byte
}

func (f *DvbRcsFrame) Kind() MessageType  { return MessageTypeDvbRcs }
func (f *DvbRcsFrame) Header() FrameHeader { return f.Hdr }

// BBFrame carries forward-link (SCPC) user data.
type BBFrame struct {
	Hdr     FrameHeader
	Payload []byte
}

func (f *BBFrame) Kind() MessageType  { return MessageTypeBBFrame }
func (f *BBFrame) Header() FrameHeader { return f.Hdr }

// Sof is the Start-Of-Frame superframe boundary signal.
type Sof struct {
	Hdr              FrameHeader
	SuperframeNumber uint32
}

func (f *Sof) Kind() MessageType  { return MessageTypeSof }
func (f *Sof) Header() FrameHeader { return f.Hdr }

// LogonReq is a terminal's request to join a category.
type LogonReq struct {
	Hdr           FrameHeader
	TalID         uint16
	CategoryLabel string
}

func (f *LogonReq) Kind() MessageType  { return MessageTypeLogonReq }
func (f *LogonReq) Header() FrameHeader { return f.Hdr }

// LogonResp answers a LogonReq, accepted or not.
type LogonResp struct {
	Hdr       FrameHeader
	TalID     uint16
	Accepted  bool
	RejectErr string
}

func (f *LogonResp) Kind() MessageType  { return MessageTypeLogonResp }
func (f *LogonResp) Header() FrameHeader { return f.Hdr }

// Sac is a Satellite Access Control frame, carrying a terminal's requests.
type Sac struct {
	Hdr           FrameHeader
	TalID         uint16
	RbdcKbps      uint32
	VbdcPkt       uint32
	CniCentibels  int16
}

func (f *Sac) Kind() MessageType  { return MessageTypeSac }
func (f *Sac) Header() FrameHeader { return f.Hdr }

// Ttp is the Terminal Time-Plan produced each superframe by the DAMA
// controller, broadcast down to terminals.
type Ttp struct {
	Hdr              FrameHeader
	SuperframeNumber uint32
	Assignments      []TerminalAllocation
}

func (f *Ttp) Kind() MessageType  { return MessageTypeTtp }
func (f *Ttp) Header() FrameHeader { return f.Hdr }

// Csc is a common signalling channel frame (broadcast control, e.g. FCA
// announcements); payload is opaque to the core.
type Csc struct {
	Hdr     FrameHeader
	Payload []byte
}

func (f *Csc) Kind() MessageType  { return MessageTypeCsc }
func (f *Csc) Header() FrameHeader { return f.Hdr }

// SlottedAlohaData carries one replica of a random-access packet.
// SuperframeNumber records which superframe the replica was transmitted
// in, so the NCC can tolerate a frame arriving after the next SoF (the
// 2-superframe ingestion window).
type SlottedAlohaData struct {
	Hdr              FrameHeader
	TalID            uint16
	BaseID           uint64
	ReplicaID        uint8
	NbReplicas       uint8
	SlotID           uint16
	SuperframeNumber uint32
	Payload          []byte
}

func (f *SlottedAlohaData) Kind() MessageType  { return MessageTypeSlottedAlohaData }
func (f *SlottedAlohaData) Header() FrameHeader { return f.Hdr }

// AckEntry is one (tal_id, base_id) tuple acknowledged by a SlottedAlohaAck.
type AckEntry struct {
	TalID  uint16
	BaseID uint64
}

// SlottedAlohaAck acknowledges a batch of logical packets.
type SlottedAlohaAck struct {
	Hdr     FrameHeader
	Entries []AckEntry
}

func (f *SlottedAlohaAck) Kind() MessageType  { return MessageTypeSlottedAlohaAck }
func (f *SlottedAlohaAck) Header() FrameHeader { return f.Hdr }
