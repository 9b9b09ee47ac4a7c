// Package scheduler implements the return-link scheduler (C10): the
// per-superframe Idle -> CollectRequests -> RunDama -> BuildFrames -> Emit
// state machine that ties the DAMA controller, per-terminal FIFOs, and the
// packet handler together into DvbRcsFrames ready for transmission.
package scheduler

import (
	"context"
	"time"

	"github.com/lephus/opensand/core"
	"github.com/lephus/opensand/internal/dama"
	"github.com/lephus/opensand/internal/logging"
	"github.com/lephus/opensand/internal/observability"
	"github.com/lephus/opensand/internal/packethandler"
	"github.com/lephus/opensand/model"
)

// Result is one superframe's scheduling output.
type Result struct {
	SuperframeNumber uint32
	Plan             *model.TimePlan
	Ttp              *model.Ttp
	Frames           []*model.DvbRcsFrame
	Stats            dama.AggregateStats
	// Emitted is false when the superframe ran out of wall-clock time
	// (ctx deadline exceeded) before the Emit step; frames were built but
	// withheld, per spec's "skip Emit... proceed to next superframe".
	Emitted bool
}

// Scheduler runs the return-link state machine across a fixed set of
// terminal categories. It owns no goroutine of its own: RunSuperframe is
// called once per SoF by whatever drives the superframe clock (see
// timectrl.SuperframeClock.AddListener).
type Scheduler struct {
	categories []*core.TerminalCategory
	damaCtrl   *dama.Controller
	handler    packethandler.Handler
	conv       *core.UnitConverter

	fifos map[uint16]*core.FifoSet

	metrics observability.CounterSink
	log     logging.Logger
}

// New builds a Scheduler. conv is the fixed-packet-length converter shared
// across every carrier (byte budgets don't depend on MODCOD, only on
// packet length); metrics may be nil, in which case increments are
// dropped.
func New(categories []*core.TerminalCategory, damaCtrl *dama.Controller, handler packethandler.Handler, conv *core.UnitConverter, metrics observability.CounterSink, log logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Noop()
	}
	if metrics == nil {
		metrics = observability.NoopSink{}
	}
	return &Scheduler{
		categories: categories,
		damaCtrl:   damaCtrl,
		handler:    handler,
		conv:       conv,
		fifos:      make(map[uint16]*core.FifoSet),
		metrics:    metrics,
		log:        log,
	}
}

// RegisterFifoSet binds talID's downlink queues, e.g. on logon.
func (s *Scheduler) RegisterFifoSet(talID uint16, fifos *core.FifoSet) {
	s.fifos[talID] = fifos
}

// UnregisterFifoSet drops talID's queues, e.g. on logoff.
func (s *Scheduler) UnregisterFifoSet(talID uint16) {
	delete(s.fifos, talID)
}

// Enqueue pushes payload onto talID's qos FIFO, for whatever upstream block
// feeds user data into the scheduler.
func (s *Scheduler) Enqueue(talID uint16, qos model.QosClass, payload []byte) error {
	fifos, ok := s.fifos[talID]
	if !ok {
		return core.ErrUnknownTerminal
	}
	fifo := fifos.Fifo(qos)
	if fifo == nil {
		return core.ErrUnknownTerminal
	}
	return fifo.Push(core.FifoElement{Payload: payload})
}

// findTerminal searches every category for talID, since the scheduler
// itself does not own the authoritative terminal map (that is the
// TerminalRegistry's job; categories are handed in at construction).
func (s *Scheduler) findTerminal(talID uint16) (*core.TerminalContext, bool) {
	for _, cat := range s.categories {
		if t, err := cat.Terminal(talID); err == nil {
			return t, true
		}
	}
	return nil, false
}

// RunSuperframe drives one full Idle -> CollectRequests -> RunDama ->
// BuildFrames -> Emit pass. sacs are the Sac frames received since the
// last superframe; ctx carries the wall-clock deadline for this
// superframe (a context.WithDeadline caller can cause Emit to be skipped,
// per spec's SuperframeOverrun edge case).
func (s *Scheduler) RunSuperframe(ctx context.Context, superframeNumber uint32, sacs []*model.Sac) *Result {
	start := time.Now()
	defer func() { s.metrics.ObserveSuperframeDuration(time.Since(start).Seconds()) }()

	s.collectRequests(ctx, sacs)

	plan, stats := s.damaCtrl.RunSuperframe(ctx, superframeNumber)
	if stats.ModcodMismatches > 0 {
		s.metrics.IncError("ModcodMismatch")
	}

	frames := s.buildFrames(ctx, plan)

	result := &Result{
		SuperframeNumber: superframeNumber,
		Plan:             plan,
		Ttp:              ttpFromPlan(plan),
		Frames:           frames,
		Stats:            stats,
	}

	if err := ctx.Err(); err != nil {
		s.log.Warn(ctx, "superframe overrun, skipping emit",
			logging.Int("superframe", int(superframeNumber)))
		s.metrics.IncError("SuperframeOverrun")
		result.Emitted = false
		return result
	}
	result.Emitted = true
	return result
}

// collectRequests is CollectRequests: ingest Sac frames into terminal
// contexts, then correct each terminal's VBDC request down to its FIFO
// set's actual occupancy (a stale request can outlive the data that
// justified it).
func (s *Scheduler) collectRequests(ctx context.Context, sacs []*model.Sac) {
	for _, sac := range sacs {
		s.ingestSac(ctx, sac)
	}

	for talID, fifos := range s.fifos {
		t, ok := s.findTerminal(talID)
		if !ok {
			continue
		}
		occupancy := uint32(fifos.TotalLen())
		if t.VbdcRequestPkt > occupancy {
			t.SetVbdcRequest(occupancy)
		}
	}
}

// ingestSac folds one received Sac frame into its terminal's context. A
// Sac referencing an unmapped tal_id is logged and ignored, per spec's
// Allocation error kind.
func (s *Scheduler) ingestSac(ctx context.Context, sac *model.Sac) {
	t, ok := s.findTerminal(sac.TalID)
	if !ok {
		s.log.Warn(ctx, "sac references unknown terminal", logging.Int("tal_id", int(sac.TalID)))
		s.metrics.IncError("UnknownTerminal")
		return
	}
	t.SetRbdcRequest(float64(sac.RbdcKbps))
	t.SetVbdcRequest(sac.VbdcPkt)
}

// buildFrames is BuildFrames: for every terminal with an allocation this
// superframe, pop packets from its FIFO set in QoS priority order,
// fragment to fit the allocated byte budget via the packet handler, and
// assemble one DvbRcsFrame per terminal.
func (s *Scheduler) buildFrames(ctx context.Context, plan *model.TimePlan) []*model.DvbRcsFrame {
	frames := make([]*model.DvbRcsFrame, 0, len(plan.Assignments))

	for talID, alloc := range plan.Assignments {
		fifos, ok := s.fifos[talID]
		if !ok {
			continue
		}

		budgetBytes, err := s.bytesForSlots(alloc.NbSlots, alloc.ModcodID)
		if err != nil || budgetBytes <= 0 {
			continue
		}

		payload, wasted := s.drainFifoSet(fifos, budgetBytes)
		if wasted {
			s.log.Info(ctx, "fifo set emptied mid-allocation",
				logging.Int("tal_id", int(talID)))
			s.metrics.IncError("UnderAllocated")
		}
		if len(payload) == 0 {
			continue
		}

		frames = append(frames, &model.DvbRcsFrame{
			Hdr: model.FrameHeader{
				MessageType:   model.MessageTypeDvbRcs,
				CarrierID:     alloc.CarrierID,
				PayloadLength: uint16(len(payload)),
				CniCentibels:  model.NoCni,
			},
			TalID:   talID,
			Payload: payload,
		})
	}
	return frames
}

// drainFifoSet pops packets from fifos in QoS priority order until budget
// bytes are used or every FIFO is empty, fragmenting the last packet via
// the packet handler and pushing any residue back. wasted reports whether
// budget remained after every FIFO ran dry (the slots wasted edge case).
func (s *Scheduler) drainFifoSet(fifos *core.FifoSet, budget int) (payload []byte, wasted bool) {
	remaining := budget
	for _, fifo := range fifos.Ordered() {
		for remaining > 0 {
			elem, err := fifo.Pop()
			if err != nil {
				break
			}
			encoded, residue := s.handler.Encode(elem.Payload, remaining)
			if len(encoded) == 0 {
				fifo.PushFront(elem)
				remaining = 0
				break
			}
			payload = append(payload, encoded...)
			remaining -= len(encoded)
			if residue != nil {
				fifo.PushFront(core.FifoElement{Payload: residue})
				remaining = 0
				break
			}
		}
		if remaining == 0 {
			break
		}
	}
	return payload, remaining > 0
}

// bytesForSlots converts an allocation's packet count to a byte budget
// using the fixed-length converter; modcodID is accepted for interface
// symmetry with the per-carrier converters but does not change the
// result (see core.UnitConverter.PktToKbits).
func (s *Scheduler) bytesForSlots(nbSlots uint16, modcodID uint8) (int, error) {
	kbits, err := s.conv.PktToKbits(uint32(nbSlots), modcodID)
	if err != nil {
		return 0, err
	}
	return int(kbits * 1000 / 8), nil
}

// ttpFromPlan renders a TimePlan into the wire Ttp broadcast to terminals.
func ttpFromPlan(plan *model.TimePlan) *model.Ttp {
	ttp := &model.Ttp{
		Hdr:              model.FrameHeader{MessageType: model.MessageTypeTtp},
		SuperframeNumber: plan.SuperframeNumber,
		Assignments:      make([]model.TerminalAllocation, 0, len(plan.Assignments)),
	}
	for _, alloc := range plan.Assignments {
		ttp.Assignments = append(ttp.Assignments, alloc)
	}
	return ttp
}
