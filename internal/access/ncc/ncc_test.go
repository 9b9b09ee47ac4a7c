package ncc

import (
	"context"
	"testing"

	"github.com/lephus/opensand/model"
)

func dataFrame(talID uint16, baseID uint64, replicaID uint8, slot uint16, sf uint32, payload string) *model.SlottedAlohaData {
	return &model.SlottedAlohaData{
		TalID:            talID,
		BaseID:           baseID,
		ReplicaID:        replicaID,
		SlotID:           slot,
		SuperframeNumber: sf,
		Payload:          []byte(payload),
	}
}

func TestResolveAcksASingleCleanReplica(t *testing.T) {
	n := New(nil)
	n.AddPacket(context.Background(), 1, dataFrame(10, 1, 0, 5, 1, "hello"))

	res := n.Resolve(1)
	if len(res.Acks) != 1 || res.Acks[0].TalID != 10 || res.Acks[0].BaseID != 1 {
		t.Fatalf("Acks = %#v, want one entry for (10, 1)", res.Acks)
	}
	if len(res.Payloads) != 1 || string(res.Payloads[0]) != "hello" {
		t.Fatalf("Payloads = %v, want [hello]", res.Payloads)
	}
}

func TestResolveDropsEveryReplicaInACollidedSlot(t *testing.T) {
	n := New(nil)
	n.AddPacket(context.Background(), 1, dataFrame(10, 1, 0, 5, 1, "a"))
	n.AddPacket(context.Background(), 1, dataFrame(20, 2, 0, 5, 1, "b")) // same slot: collision

	res := n.Resolve(1)
	if len(res.Acks) != 0 {
		t.Fatalf("Acks = %#v, want none (both replicas collided)", res.Acks)
	}
}

func TestResolveAcksPacketWithAtLeastOneCleanReplica(t *testing.T) {
	n := New(nil)
	// Packet (10,1) has two replicas: one collides on slot 5, one lands
	// clean on slot 9. It should still be acked via the clean replica.
	n.AddPacket(context.Background(), 1, dataFrame(10, 1, 0, 5, 1, "a-r0"))
	n.AddPacket(context.Background(), 1, dataFrame(20, 2, 0, 5, 1, "b-r0"))
	n.AddPacket(context.Background(), 1, dataFrame(10, 1, 1, 9, 1, "a-r1"))

	res := n.Resolve(1)
	if len(res.Acks) != 1 || res.Acks[0].TalID != 10 || res.Acks[0].BaseID != 1 {
		t.Fatalf("Acks = %#v, want one entry for (10, 1)", res.Acks)
	}
}

func TestResolveUnknownSuperframeReturnsEmptyResult(t *testing.T) {
	n := New(nil)
	res := n.Resolve(42)
	if len(res.Acks) != 0 || len(res.Payloads) != 0 {
		t.Fatalf("Resolve on unseen superframe = %#v, want empty", res)
	}
}

func TestResolveConsumesTheWindow(t *testing.T) {
	n := New(nil)
	n.AddPacket(context.Background(), 1, dataFrame(10, 1, 0, 5, 1, "hello"))
	n.Resolve(1)

	res := n.Resolve(1)
	if len(res.Acks) != 0 {
		t.Fatalf("second Resolve(1) = %#v, want empty (window consumed)", res.Acks)
	}
}

func TestAddPacketAcceptsOneSuperframeOldFrame(t *testing.T) {
	n := New(nil)
	// Frame timestamped for superframe 4, arriving while the NCC is
	// already processing superframe 5 (in flight when the SoF landed).
	n.AddPacket(context.Background(), 5, dataFrame(10, 1, 0, 5, 4, "late"))

	res := n.Resolve(4)
	if len(res.Acks) != 1 {
		t.Fatalf("Acks = %#v, want the one-superframe-old frame accepted", res.Acks)
	}
}

func TestAddPacketDropsFramesOlderThanTheIngestionWindow(t *testing.T) {
	n := New(nil)
	n.AddPacket(context.Background(), 10, dataFrame(10, 1, 0, 5, 8, "too-late"))

	res := n.Resolve(8)
	if len(res.Acks) != 0 {
		t.Fatalf("Acks = %#v, want none (frame older than the ingestion window)", res.Acks)
	}
}

func TestPruneOlderThanDropsStaleWindows(t *testing.T) {
	n := New(nil)
	n.AddPacket(context.Background(), 1, dataFrame(10, 1, 0, 5, 1, "a"))
	n.PruneOlderThan(10)

	res := n.Resolve(1)
	if len(res.Acks) != 0 {
		t.Fatalf("Acks = %#v, want none (window pruned before Resolve)", res.Acks)
	}
}
