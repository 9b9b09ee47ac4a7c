// Package tal implements the ST-side Slotted-Aloha transmitter: slot
// selection, replica transmission and retransmission tracking.
package tal

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/lephus/opensand/internal/access/backoff"
	"github.com/lephus/opensand/internal/logging"
	"github.com/lephus/opensand/model"
)

// ErrMaxRetransmissions is returned (and logged) when a packet exhausts
// its retransmission budget without being acknowledged.
var ErrMaxRetransmissions = errors.New("max retransmissions reached")

// PacketState names where a logical packet sits in its lifetime, so
// tests can assert transitions directly (testable property 6, the
// retransmission cap) instead of inferring state from map membership.
type PacketState uint8

const (
	// StatePending: encapsulated, not yet transmitted.
	StatePending PacketState = iota
	// StateAwaitingAck: transmitted, waiting for ACK or timeout.
	StateAwaitingAck
	// StateRetransmit: timed out at least once, queued for resend.
	StateRetransmit
)

// pendingEntry tracks one logical packet from first transmission until
// ACK, drop, or logoff.
type pendingEntry struct {
	pkt             model.SlottedAlohaPacket
	state           PacketState
	sentSuperframe  uint32
	retransmissions int
}

// Config holds the per-terminal Slotted-Aloha parameters sourced from
// configuration (spec section 6).
type Config struct {
	TalID                uint16
	NbReplicas           uint8
	NbMaxPackets         int
	NbMaxRetransmissions int
	TimeoutSuperframes   uint32
	SlotsPerSuperframe   uint16
}

// Tal is the ST-side Slotted-Aloha state machine (C7).
type Tal struct {
	cfg     Config
	backoff backoff.Algorithm
	rng     *rand.Rand
	log     logging.Logger

	nextBaseID map[model.QosClass]uint64

	// pending holds packets from on_encap_packet that have not yet been
	// scheduled, keyed by logical packet key.
	pending map[model.PacketKey]*pendingEntry
	// pendingOrder preserves insertion order of pending so schedule order
	// is deterministic given a fixed RNG seed, matching the concurrency
	// model's reproducibility requirement.
	pendingOrder []model.PacketKey
	// awaitingAck holds packets that have been transmitted at least once
	// and are waiting for an ACK or a timeout.
	awaitingAck map[model.PacketKey]*pendingEntry
	// retransmissionQueue holds packets bumped back for resend after a
	// timeout, in FIFO order.
	retransmissionQueue []model.PacketKey

	backoffCountdown uint32
}

// New constructs a Tal for one terminal, with the given backoff algorithm
// and RNG (each block owns an independent PRNG per the concurrency
// model, for reproducibility across runs with identical seeds).
func New(cfg Config, algo backoff.Algorithm, rng *rand.Rand, log logging.Logger) *Tal {
	if log == nil {
		log = logging.Noop()
	}
	return &Tal{
		cfg:         cfg,
		backoff:     algo,
		rng:         rng,
		log:         log,
		nextBaseID:  make(map[model.QosClass]uint64),
		pending:     make(map[model.PacketKey]*pendingEntry),
		awaitingAck: make(map[model.PacketKey]*pendingEntry),
	}
}

// OnEncapPacket assigns a monotone per-qos base_id to pkt and stores it
// pending transmission.
func (t *Tal) OnEncapPacket(qos model.QosClass, payload []byte) model.PacketKey {
	baseID := t.nextBaseID[qos]
	t.nextBaseID[qos] = baseID + 1

	pkt := model.SlottedAlohaPacket{
		TalID:      t.cfg.TalID,
		Qos:        qos,
		BaseID:     baseID,
		NbReplicas: t.cfg.NbReplicas,
		Payload:    payload,
	}
	key := pkt.Key()
	t.pending[key] = &pendingEntry{pkt: pkt, state: StatePending}
	t.pendingOrder = append(t.pendingOrder, key)
	return key
}

// OnSof advances the backoff countdown and checks timed-out
// transmissions, moving them to the retransmission queue. currentSf is
// the superframe number just started.
func (t *Tal) OnSof(ctx context.Context, currentSf uint32) {
	if t.backoffCountdown > 0 {
		t.backoffCountdown--
	}

	for key, entry := range t.awaitingAck {
		if currentSf-entry.sentSuperframe < t.cfg.TimeoutSuperframes {
			continue
		}
		delete(t.awaitingAck, key)
		entry.retransmissions++
		if entry.retransmissions > t.cfg.NbMaxRetransmissions {
			t.log.Warn(ctx, "slotted aloha packet dropped: max retransmissions",
				logging.Int("tal_id", int(entry.pkt.TalID)),
				logging.Any("base_id", entry.pkt.BaseID))
			continue
		}
		t.backoff.SetNok()
		t.backoffCountdown = t.backoff.Delay()
		entry.state = StateRetransmit
		t.retransmissionQueue = append(t.retransmissionQueue, key)
		t.pending[key] = entry
	}
}

// ReadyToSchedule reports whether the backoff delay has elapsed and
// there is at least one packet (pending or queued for retransmission) to
// send.
func (t *Tal) ReadyToSchedule() bool {
	return t.backoffCountdown == 0 && (len(t.pending) > 0 || len(t.retransmissionQueue) > 0)
}

// Schedule builds up to NbMaxPackets SlottedAlohaData frames for the
// current superframe, drawing NbReplicas distinct slots per packet from
// [0, SlotsPerSuperframe). Packets that cannot find enough free slots are
// spilled back to the retransmission queue for the next opportunity.
func (t *Tal) Schedule(currentSf uint32) []*model.SlottedAlohaData {
	if !t.ReadyToSchedule() {
		return nil
	}

	keys := t.drainCandidateKeys()
	usedSlots := make(map[uint16]struct{})
	frames := make([]*model.SlottedAlohaData, 0, len(keys)*int(t.cfg.NbReplicas))

	for _, key := range keys {
		entry, ok := t.pending[key]
		if !ok {
			continue
		}
		slots, ok := t.drawReplicaSlots(usedSlots)
		if !ok {
			// Slot set exhausted: spill back for next opportunity.
			t.retransmissionQueue = append(t.retransmissionQueue, key)
			continue
		}
		delete(t.pending, key)
		entry.state = StateAwaitingAck
		entry.sentSuperframe = currentSf
		t.awaitingAck[key] = entry

		for replicaID, slot := range slots {
			frames = append(frames, &model.SlottedAlohaData{
				Hdr:              model.FrameHeader{MessageType: model.MessageTypeSlottedAlohaData},
				TalID:            entry.pkt.TalID,
				BaseID:           entry.pkt.BaseID,
				ReplicaID:        uint8(replicaID),
				NbReplicas:       entry.pkt.NbReplicas,
				SlotID:           slot,
				SuperframeNumber: currentSf,
				Payload:          entry.pkt.Payload,
			})
		}
	}
	return frames
}

// drainCandidateKeys pops up to NbMaxPackets keys from the retransmission
// queue first (oldest failures get priority), then from fresh pending
// packets.
func (t *Tal) drainCandidateKeys() []model.PacketKey {
	budget := t.cfg.NbMaxPackets
	keys := make([]model.PacketKey, 0, budget)

	for budget > 0 && len(t.retransmissionQueue) > 0 {
		keys = append(keys, t.retransmissionQueue[0])
		t.retransmissionQueue = t.retransmissionQueue[1:]
		budget--
	}
	if budget <= 0 {
		return keys
	}
	remaining := t.pendingOrder[:0:0]
	for _, key := range t.pendingOrder {
		if _, ok := t.pending[key]; !ok {
			continue // already drained in a previous call
		}
		if budget > 0 {
			keys = append(keys, key)
			budget--
			continue
		}
		remaining = append(remaining, key)
	}
	t.pendingOrder = remaining
	return keys
}

// drawReplicaSlots draws NbReplicas distinct slots not already in used,
// reserving them on success. It returns ok=false if the available slot
// set is exhausted before NbReplicas distinct slots are found.
func (t *Tal) drawReplicaSlots(used map[uint16]struct{}) ([]uint16, bool) {
	if uint16(len(used))+uint16(t.cfg.NbReplicas) > t.cfg.SlotsPerSuperframe {
		return nil, false
	}
	slots := make([]uint16, 0, t.cfg.NbReplicas)
	attempts := 0
	maxAttempts := int(t.cfg.SlotsPerSuperframe) * 4
	for len(slots) < int(t.cfg.NbReplicas) {
		attempts++
		if attempts > maxAttempts {
			return nil, false
		}
		slot := uint16(t.rng.Int63n(int64(t.cfg.SlotsPerSuperframe)))
		if _, taken := used[slot]; taken {
			continue
		}
		used[slot] = struct{}{}
		slots = append(slots, slot)
	}
	return slots, true
}

// OnRcvFrame processes an inbound ACK frame, clearing acknowledged
// packets and notifying the backoff algorithm of success.
func (t *Tal) OnRcvFrame(ack *model.SlottedAlohaAck) {
	for _, entry := range ack.Entries {
		if entry.TalID != t.cfg.TalID {
			continue
		}
		key := model.PacketKey{TalID: entry.TalID, BaseID: entry.BaseID}
		if _, ok := t.awaitingAck[key]; !ok {
			continue
		}
		delete(t.awaitingAck, key)
		t.backoff.SetOk()
		t.backoffCountdown = t.backoff.Delay()
	}
}

// Logoff clears all pending and in-flight state for this terminal,
// cancelling retransmissions, per spec's TerminalGone handling.
func (t *Tal) Logoff() {
	t.pending = make(map[model.PacketKey]*pendingEntry)
	t.awaitingAck = make(map[model.PacketKey]*pendingEntry)
	t.retransmissionQueue = nil
}

// PendingCount reports the number of packets not yet acknowledged,
// across both the unsent and awaiting-ack sets.
func (t *Tal) PendingCount() int {
	return len(t.pending) + len(t.awaitingAck)
}

// State reports where key sits in its lifetime, or ok=false if key is
// unknown (already acked, dropped, or never seen).
func (t *Tal) State(key model.PacketKey) (PacketState, bool) {
	if entry, ok := t.pending[key]; ok {
		return entry.state, true
	}
	if entry, ok := t.awaitingAck[key]; ok {
		return entry.state, true
	}
	return 0, false
}

// Retransmissions reports how many times key has been retransmitted, or
// ok=false if key is unknown.
func (t *Tal) Retransmissions(key model.PacketKey) (int, bool) {
	if entry, ok := t.pending[key]; ok {
		return entry.retransmissions, true
	}
	if entry, ok := t.awaitingAck[key]; ok {
		return entry.retransmissions, true
	}
	return 0, false
}

func (t *Tal) String() string {
	return fmt.Sprintf("tal[%d]", t.cfg.TalID)
}
