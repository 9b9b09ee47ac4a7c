package tal

import (
	"context"
	"math/rand"
	"testing"

	"github.com/lephus/opensand/internal/access/backoff"
	"github.com/lephus/opensand/model"
)

func testTal(t *testing.T, nbMaxRetransmissions int) *Tal {
	t.Helper()
	cfg := Config{
		TalID:                10,
		NbReplicas:           2,
		NbMaxPackets:         5,
		NbMaxRetransmissions: nbMaxRetransmissions,
		TimeoutSuperframes:   2,
		SlotsPerSuperframe:   16,
	}
	rng := rand.New(rand.NewSource(1))
	algo := backoff.NewBeb(rng, 64, 2)
	return New(cfg, algo, rng, nil)
}

func TestOnEncapPacketAssignsMonotoneBaseIDsPerQos(t *testing.T) {
	tal := testTal(t, 3)

	k1 := tal.OnEncapPacket(0, []byte("a"))
	k2 := tal.OnEncapPacket(0, []byte("b"))
	k3 := tal.OnEncapPacket(1, []byte("c"))

	if k1.BaseID != 0 || k2.BaseID != 1 {
		t.Fatalf("qos 0 base ids = %d, %d, want 0, 1", k1.BaseID, k2.BaseID)
	}
	if k3.BaseID != 0 {
		t.Fatalf("qos 1 base id = %d, want 0 (independent sequence per qos)", k3.BaseID)
	}
}

func TestScheduleMovesPendingPacketsToAwaitingAck(t *testing.T) {
	tal := testTal(t, 3)
	key := tal.OnEncapPacket(0, []byte("payload"))

	frames := tal.Schedule(1)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2 (nb_replicas)", len(frames))
	}
	state, ok := tal.State(key)
	if !ok || state != StateAwaitingAck {
		t.Fatalf("State(key) = %v, %v, want StateAwaitingAck", state, ok)
	}
}

func TestScheduleDrawsDistinctSlotsPerReplica(t *testing.T) {
	tal := testTal(t, 3)
	tal.OnEncapPacket(0, []byte("payload"))

	frames := tal.Schedule(1)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].SlotID == frames[1].SlotID {
		t.Fatalf("both replicas landed on slot %d, want distinct slots", frames[0].SlotID)
	}
}

func TestReadyToScheduleFalseWhenNothingQueued(t *testing.T) {
	tal := testTal(t, 3)
	if tal.ReadyToSchedule() {
		t.Fatalf("ReadyToSchedule() = true with nothing queued")
	}
}

func TestOnRcvFrameAcksAwaitingPacketAndResetsBackoff(t *testing.T) {
	tal := testTal(t, 3)
	key := tal.OnEncapPacket(0, []byte("payload"))
	tal.Schedule(1)

	ack := &model.SlottedAlohaAck{Entries: []model.AckEntry{{TalID: 10, BaseID: key.BaseID}}}
	tal.OnRcvFrame(ack)

	if _, ok := tal.State(key); ok {
		t.Fatalf("State(key) found after ack, want cleared")
	}
	if tal.PendingCount() != 0 {
		t.Fatalf("PendingCount() = %d, want 0", tal.PendingCount())
	}
}

func TestOnRcvFrameIgnoresAckForAnotherTerminal(t *testing.T) {
	tal := testTal(t, 3)
	key := tal.OnEncapPacket(0, []byte("payload"))
	tal.Schedule(1)

	ack := &model.SlottedAlohaAck{Entries: []model.AckEntry{{TalID: 99, BaseID: key.BaseID}}}
	tal.OnRcvFrame(ack)

	if _, ok := tal.State(key); !ok {
		t.Fatalf("State(key) not found, want still awaiting ack (ack was for a different tal_id)")
	}
}

func TestOnSofMovesTimedOutPacketsToRetransmit(t *testing.T) {
	tal := testTal(t, 3)
	key := tal.OnEncapPacket(0, []byte("payload"))
	tal.Schedule(1) // sent at superframe 1, timeout is 2 superframes

	tal.OnSof(context.Background(), 2) // currentSf - sentSuperframe == 1, not yet timed out
	if state, ok := tal.State(key); !ok || state != StateAwaitingAck {
		t.Fatalf("State(key) = %v, %v at sf 2, want still StateAwaitingAck", state, ok)
	}

	tal.OnSof(context.Background(), 3) // currentSf - sentSuperframe == 2, timed out
	state, ok := tal.State(key)
	if !ok || state != StateRetransmit {
		t.Fatalf("State(key) = %v, %v at sf 3, want StateRetransmit", state, ok)
	}
	n, _ := tal.Retransmissions(key)
	if n != 1 {
		t.Fatalf("Retransmissions(key) = %d, want 1", n)
	}
}

func TestPacketDroppedAfterMaxRetransmissions(t *testing.T) {
	// NbMaxRetransmissions=0: the very first timeout already exceeds the
	// budget, so the drop is deterministic regardless of the backoff's
	// randomly-drawn delay.
	tal := testTal(t, 0)
	key := tal.OnEncapPacket(0, []byte("payload"))
	tal.Schedule(1)

	tal.OnSof(context.Background(), 3) // currentSf - sentSuperframe == 2 == TimeoutSuperframes: times out

	if _, ok := tal.State(key); ok {
		t.Fatalf("State(key) found after exceeding max retransmissions, want dropped")
	}
	if tal.PendingCount() != 0 {
		t.Fatalf("PendingCount() = %d, want 0 after drop", tal.PendingCount())
	}
}

func TestLogoffClearsAllState(t *testing.T) {
	tal := testTal(t, 3)
	tal.OnEncapPacket(0, []byte("payload"))
	tal.Schedule(1)

	tal.Logoff()
	if tal.PendingCount() != 0 {
		t.Fatalf("PendingCount() = %d after Logoff, want 0", tal.PendingCount())
	}
}
