// Package ncc implements the GW-side Slotted-Aloha receiver: collision
// detection across a superframe's slot table, replica resolution, and
// ACK scheduling.
package ncc

import (
	"context"

	"github.com/lephus/opensand/internal/logging"
	"github.com/lephus/opensand/model"
)

// receivedReplica is one decoded SlottedAlohaData frame, indexed by the
// slot it landed on.
type receivedReplica struct {
	key       model.PacketKey
	replicaID uint8
	payload   []byte
}

// superframeSlots is the slot -> replicas table for one superframe.
type superframeSlots struct {
	sf    uint32
	slots map[uint16][]receivedReplica
}

func newSuperframeSlots(sf uint32) *superframeSlots {
	return &superframeSlots{sf: sf, slots: make(map[uint16][]receivedReplica)}
}

// Result is the output of resolving one superframe's slot table: ACKs to
// send and decapsulated payloads to forward upward.
type Result struct {
	Superframe uint32
	Acks       []model.AckEntry
	Payloads   [][]byte
}

// Ncc is the GW-side Slotted-Aloha state machine (C8). It keeps a
// 2-superframe ingestion window so a frame timestamped for the previous
// superframe (in flight when the next SoF arrives) is still resolved
// correctly, rather than being silently dropped.
type Ncc struct {
	log logging.Logger

	windows map[uint32]*superframeSlots
}

// New constructs an Ncc.
func New(log logging.Logger) *Ncc {
	if log == nil {
		log = logging.Noop()
	}
	return &Ncc{log: log, windows: make(map[uint32]*superframeSlots)}
}

// AddPacket ingests one received SlottedAlohaData frame into its
// superframe's slot table. Frames for the current or immediately
// preceding superframe are accepted (the ingestion window); anything
// older is logged and dropped.
func (n *Ncc) AddPacket(ctx context.Context, currentSf uint32, frame *model.SlottedAlohaData) {
	frameSf := frame.SuperframeNumber
	if frameSf+1 < currentSf {
		n.log.Warn(ctx, "slotted aloha packet outside ingestion window, dropping",
			logging.Int("tal_id", int(frame.TalID)), logging.Any("base_id", frame.BaseID))
		return
	}

	w, ok := n.windows[frameSf]
	if !ok {
		w = newSuperframeSlots(frameSf)
		n.windows[frameSf] = w
	}
	w.slots[frame.SlotID] = append(w.slots[frame.SlotID], receivedReplica{
		key:       model.PacketKey{TalID: frame.TalID, BaseID: frame.BaseID},
		replicaID: frame.ReplicaID,
		payload:   frame.Payload,
	})
}

// Resolve is called once a superframe's worth of frames has been fully
// ingested (signalled by the next SoF). For each slot: exactly one
// packet is "clean"; more than one marks every replica in that slot
// collided. A logical packet with at least one clean replica is
// considered received; packets with every replica collided are silently
// lost (no NAK — the ST learns by timeout).
func (n *Ncc) Resolve(sf uint32) Result {
	w, ok := n.windows[sf]
	if !ok {
		return Result{Superframe: sf}
	}
	delete(n.windows, sf)

	cleanByKey := make(map[model.PacketKey]receivedReplica)

	for _, replicas := range w.slots {
		if len(replicas) != 1 {
			continue
		}
		r := replicas[0]
		if _, seen := cleanByKey[r.key]; !seen {
			cleanByKey[r.key] = r
		}
	}

	res := Result{Superframe: sf}
	for key, r := range cleanByKey {
		res.Acks = append(res.Acks, model.AckEntry{TalID: key.TalID, BaseID: key.BaseID})
		res.Payloads = append(res.Payloads, r.payload)
	}
	return res
}

// PruneOlderThan drops any ingestion window older than sf-1, guarding
// against unbounded growth if a superframe's Resolve is never called
// (e.g. a dropped SoF).
func (n *Ncc) PruneOlderThan(sf uint32) {
	for windowSf := range n.windows {
		if windowSf+1 < sf {
			delete(n.windows, windowSf)
		}
	}
}
