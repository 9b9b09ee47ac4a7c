// Package packethandler defines the capability interface the MAC core
// consumes for encapsulation-layer concerns (GSE/RLE/ROHC), which are
// themselves out of scope, plus a reference fixed-header implementation
// used by tests and examples.
package packethandler

import "fmt"

// Handler is the downstream packet-handler contract from spec section 6:
// fragmentation, decoding, and the bits of a packet the scheduler needs
// without understanding its encapsulation.
type Handler interface {
	// Name identifies the encapsulation scheme, for logging.
	Name() string
	// Encode fits netPacket into at most maxBytes, returning the
	// encoded bytes and, if the packet didn't fit whole, the remaining
	// residue to be pushed back to the head of the FIFO.
	Encode(netPacket []byte, maxBytes int) (encoded []byte, residue []byte)
	// Decode splits a received byte stream back into net packets.
	Decode(bytes []byte) [][]byte
	// GetSrc extracts the source tal_id from a packet's payload bytes.
	GetSrc(payload []byte) (uint16, error)
	// GetCniExtension extracts an opaque CNI header extension value, if
	// the encapsulation scheme carries one (e.g. deencodeCniExt).
	GetCniExtension(payload []byte) (uint32, bool)
}

// FixedHeaderHandler is a reference Handler: every framed packet carries
// a 2-byte length prefix ahead of its payload; the payload itself is
// expected to begin with a 2-byte source tal_id, as tagged by whatever
// upstream encapsulation produced it. It exists so the scheduler and its
// tests have a concrete, self-consistent encapsulation to exercise
// without pulling in a real GSE/RLE/ROHC implementation (explicitly out
// of scope).
type FixedHeaderHandler struct{}

const fixedHeaderLen = 2

// NewFixedHeaderHandler constructs the reference handler.
func NewFixedHeaderHandler() *FixedHeaderHandler { return &FixedHeaderHandler{} }

func (h *FixedHeaderHandler) Name() string { return "fixed-header" }

// Encode fits as much of netPacket as possible into maxBytes, including
// the fixed header on the fitted prefix; whatever does not fit is
// returned as raw residue, without a header, so it can be pushed back
// to the FIFO and framed when it is re-encoded next superframe.
func (h *FixedHeaderHandler) Encode(netPacket []byte, maxBytes int) ([]byte, []byte) {
	if maxBytes < fixedHeaderLen {
		return nil, netPacket
	}
	avail := maxBytes - fixedHeaderLen
	if avail >= len(netPacket) {
		return h.frame(netPacket), nil
	}
	return h.frame(netPacket[:avail]), netPacket[avail:]
}

func (h *FixedHeaderHandler) frame(payload []byte) []byte {
	out := make([]byte, fixedHeaderLen+len(payload))
	out[0] = byte(len(payload) >> 8)
	out[1] = byte(len(payload))
	copy(out[fixedHeaderLen:], payload)
	return out
}

// Decode splits a byte stream of back-to-back fixed-header frames into
// individual net packets.
func (h *FixedHeaderHandler) Decode(bytes []byte) [][]byte {
	var out [][]byte
	for len(bytes) >= fixedHeaderLen {
		length := int(bytes[0])<<8 | int(bytes[1])
		end := fixedHeaderLen + length
		if end > len(bytes) {
			break
		}
		out = append(out, bytes[fixedHeaderLen:end])
		bytes = bytes[end:]
	}
	return out
}

// GetSrc reads the 2-byte source tal_id embedded at the start of a
// decoded net packet's payload.
func (h *FixedHeaderHandler) GetSrc(payload []byte) (uint16, error) {
	if len(payload) < 2 {
		return 0, fmt.Errorf("packethandler: payload too short for src tal_id")
	}
	return uint16(payload[0])<<8 | uint16(payload[1]), nil
}

// GetCniExtension is unsupported by the fixed-header scheme.
func (h *FixedHeaderHandler) GetCniExtension([]byte) (uint32, bool) { return 0, false }
