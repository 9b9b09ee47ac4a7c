// Package dama implements the return-link DAMA controller (C9): the
// per-superframe RBDC/VBDC/FCA allocation across terminal categories and
// carrier groups, producing a Terminal Time-Plan.
package dama

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/lephus/opensand/core"
	"github.com/lephus/opensand/internal/logging"
	"github.com/lephus/opensand/model"
)

// FcaConfig holds the GW-wide Free Capacity Assignment parameter. A zero
// value disables FCA entirely, per spec's "if fca_kbps == 0, skip".
type FcaConfig struct {
	FcaKbps float64
}

// AggregateStats are GW-wide totals tracked across every category and
// carrier for one superframe, for probes, mirroring the original
// controller's gw_rbdc_request_kbps/gw_rbdc_alloc_kbps/... counters.
type AggregateStats struct {
	RbdcRequestKbps float64
	RbdcAllocKbps   float64
	VbdcRequestPkt  uint32
	VbdcAllocPkt    uint32
	FcaAllocKbps    float64

	ModcodMismatches int
	// UnknownTerminals is not set by the controller, which never sees a
	// Sac. The scheduler's IngestSac step does not set it either: it
	// reports a Sac for a tal_id with no TerminalContext through its
	// CounterSink ("UnknownTerminal"), so this field stays zero.
	UnknownTerminals int
}

// Controller runs the DAMA allocation algorithm across a fixed set of
// TerminalCategory instances.
type Controller struct {
	categories []*core.TerminalCategory
	fca        FcaConfig
	log        logging.Logger
}

// New builds a Controller over categories, with the given FCA parameter.
func New(categories []*core.TerminalCategory, fca FcaConfig, log logging.Logger) *Controller {
	if log == nil {
		log = logging.Noop()
	}
	return &Controller{categories: categories, fca: fca, log: log}
}

// RunSuperframe runs Steps A-D for every category/carrier group and
// produces the Terminal Time-Plan for superframeNumber. It never
// returns an error for a single bad terminal or carrier; those are
// logged and skipped, per spec's error-handling policy that the
// scheduler never crashes on a single bad input.
func (c *Controller) RunSuperframe(ctx context.Context, superframeNumber uint32) (*model.TimePlan, AggregateStats) {
	plan := model.NewTimePlan(superframeNumber)
	plan.PlanID = uuid.NewString()

	var stats AggregateStats

	for _, category := range c.categories {
		if err := category.ResetCapacities(); err != nil {
			c.log.Error(ctx, "dama: failed to reset category capacities",
				logging.String("category", category.Label), logging.Any("err", err))
			continue
		}

		for _, group := range category.Groups() {
			if group.AccessType != core.AccessTypeDama {
				continue
			}
			terminals := category.TerminalsInCarriersGroup(group.CarriersID)
			eligible := c.filterModcodCompatible(ctx, group, terminals, &stats)

			c.runRbdc(ctx, group, eligible, &stats)
			c.runVbdc(ctx, group, eligible, &stats)
			c.runFca(ctx, group, eligible, &stats)

			c.fillPlan(plan, group, eligible)
		}
	}

	return plan, stats
}

// filterModcodCompatible excludes terminals whose current input MODCOD
// the carrier cannot decode (ModcodMismatch). Requests are preserved (not cleared) for excluded terminals so
// they are retried next superframe.
func (c *Controller) filterModcodCompatible(ctx context.Context, group *core.CarriersGroup, terminals []*core.TerminalContext, stats *AggregateStats) []*core.TerminalContext {
	eligible := make([]*core.TerminalContext, 0, len(terminals))
	for _, t := range terminals {
		if !group.SupportsModcod(t.CurrentInputModcodID) {
			stats.ModcodMismatches++
			c.log.Warn(ctx, "dama: modcod mismatch, excluding from this superframe",
				logging.Int("tal_id", int(t.TalID)), logging.Int("modcod_id", int(t.CurrentInputModcodID)))
			continue
		}
		t.ResetAllocations()
		eligible = append(eligible, t)
	}
	return eligible
}

// runRbdc implements Step B: fair-share allocation with credit
// carry-over.
func (c *Controller) runRbdc(ctx context.Context, group *core.CarriersGroup, terminals []*core.TerminalContext, stats *AggregateStats) {
	if len(terminals) == 0 {
		return
	}
	conv := group.Converter()
	modcodID := conv.CurrentModcod()

	requestPktpf := make(map[uint16]uint32, len(terminals))
	var totalRequestPktpf uint32
	for _, t := range terminals {
		pkt, _, err := conv.KbpsToPktpf(t.RbdcRequestKbps, modcodID)
		if err != nil {
			c.log.Error(ctx, "dama: rbdc conversion failed", logging.Any("err", err))
			continue
		}
		requestPktpf[t.TalID] = pkt
		totalRequestPktpf += pkt
		stats.RbdcRequestKbps += t.RbdcRequestKbps
	}
	if totalRequestPktpf == 0 {
		return
	}

	remaining := group.RemainingCapacityPktpf()
	if remaining == 0 {
		c.log.Info(ctx, "dama: skipping rbdc, no remaining capacity", logging.Int("carrier_id", int(group.CarriersID)))
		return
	}

	fairShare := float64(totalRequestPktpf) / float64(remaining)
	if fairShare < 1.0 {
		fairShare = 1.0
	}

	oneSlotKbps, err := conv.PktpfToKbps(1, modcodID)
	if err != nil {
		return
	}

	for _, t := range terminals {
		request := requestPktpf[t.TalID]
		fairRbdcPktpf := float64(request) / fairShare
		alloc := uint32(fairRbdcPktpf) // floor

		consumed := group.Consume(alloc)
		t.RbdcAllocPktpf = consumed
		stats.RbdcAllocKbps += mustPktpfToKbps(conv, consumed, modcodID)

		if fairShare > 1.0 {
			t.RbdcCreditKbps = addRbdcCredit(t.RbdcCreditKbps, (fairRbdcPktpf-float64(alloc))*oneSlotKbps, conv)
		}
	}

	if fairShare > 1.0 {
		c.runRbdcCreditPass(ctx, group, terminals, conv, modcodID)
	}
}

// addRbdcCredit folds a kbps-denominated residue into a terminal's
// running credit, saturating at 0 (spec's resolution of the ambiguous
// boundary behavior) and bounding above at one packet's worth of rate
// (testable property 3).
func addRbdcCredit(currentCreditKbps, residueKbps float64, conv *core.PerCarrierUnitConverter) float64 {
	credit := currentCreditKbps + residueKbps
	if credit < 0 {
		credit = 0
	}
	bound := conv.PktpfForOnePacket()
	if credit >= bound {
		credit = bound - 1e-9
	}
	return credit
}

// runRbdcCreditPass is Step B.4: terminals sorted by descending banked
// credit get one extra packet each while capacity and their own
// max_rbdc_pktpf bound allow it.
func (c *Controller) runRbdcCreditPass(ctx context.Context, group *core.CarriersGroup, terminals []*core.TerminalContext, conv *core.PerCarrierUnitConverter, modcodID uint8) {
	sorted := make([]*core.TerminalContext, len(terminals))
	copy(sorted, terminals)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RbdcCreditKbps > sorted[j].RbdcCreditKbps })

	slotKbps, err := conv.PktpfToKbps(1, modcodID)
	if err != nil {
		return
	}

	for _, t := range sorted {
		if group.RemainingCapacityPktpf() == 0 {
			break
		}
		if t.RbdcCreditKbps <= slotKbps {
			continue
		}
		maxRbdcPktpf, _, err := conv.KbpsToPktpf(t.MaxRbdcKbps, modcodID)
		if err != nil {
			continue
		}
		if maxRbdcPktpf <= t.RbdcAllocPktpf+1 {
			continue
		}
		if group.Consume(1) == 0 {
			continue
		}
		t.RbdcAllocPktpf++
		t.RbdcCreditKbps -= slotKbps
		if t.RbdcCreditKbps < 0 {
			t.RbdcCreditKbps = 0
		}
		c.log.Debug(ctx, "dama: rbdc credit pass allocated one packet",
			logging.Int("tal_id", int(t.TalID)))
	}
}

// runVbdc implements Step C: greedy allocation sorted by descending
// volume request.
func (c *Controller) runVbdc(ctx context.Context, group *core.CarriersGroup, terminals []*core.TerminalContext, stats *AggregateStats) {
	if len(terminals) == 0 || group.RemainingCapacityPktpf() == 0 {
		return
	}
	sorted := make([]*core.TerminalContext, len(terminals))
	copy(sorted, terminals)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].VbdcRequestPkt > sorted[j].VbdcRequestPkt })

	for _, t := range sorted {
		request := t.VbdcRequestPkt
		if request == 0 {
			continue
		}
		stats.VbdcRequestPkt += request

		remaining := group.RemainingCapacityPktpf()
		if remaining == 0 {
			c.log.Info(ctx, "dama: vbdc request unserved, capacity exhausted",
				logging.Int("tal_id", int(t.TalID)), logging.Int("request_pkt", int(request)))
			continue
		}
		if request <= remaining {
			group.Consume(request)
			t.VbdcAllocPkt = request
			stats.VbdcAllocPkt += request
			continue
		}
		group.Consume(remaining)
		t.VbdcAllocPkt = remaining
		stats.VbdcAllocPkt += remaining
		c.log.Info(ctx, "dama: vbdc request partially served",
			logging.Int("tal_id", int(t.TalID)), logging.Int("allocated_pkt", int(remaining)), logging.Int("requested_pkt", int(request)))
	}
}

// runFca implements Step D: if fca_kbps is zero, skip entirely.
// Otherwise, terminals sorted by ascending banked RBDC credit each get
// fca_pktpf packets as long as more than that much capacity remains —
// mirroring the original controller's "remaining > fca_pktpf" guard,
// which leaves any final fractional remainder unallocated rather than
// splitting it.
func (c *Controller) runFca(ctx context.Context, group *core.CarriersGroup, terminals []*core.TerminalContext, stats *AggregateStats) {
	if c.fca.FcaKbps == 0 || len(terminals) == 0 {
		return
	}
	conv := group.Converter()
	modcodID := conv.CurrentModcod()
	fcaPktpf, _, err := conv.KbpsToPktpf(c.fca.FcaKbps, modcodID)
	if err != nil || fcaPktpf == 0 {
		return
	}

	sorted := make([]*core.TerminalContext, len(terminals))
	copy(sorted, terminals)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RbdcCreditKbps < sorted[j].RbdcCreditKbps })

	for _, t := range sorted {
		if group.RemainingCapacityPktpf() <= fcaPktpf {
			c.log.Info(ctx, "dama: skipping fca, not enough remaining capacity",
				logging.Int("carrier_id", int(group.CarriersID)))
			break
		}
		group.Consume(fcaPktpf)
		t.FcaAllocPktpf = fcaPktpf
		fcaKbps, err := conv.PktpfToKbps(fcaPktpf, modcodID)
		if err == nil {
			stats.FcaAllocKbps += fcaKbps
		}
	}
}

// fillPlan records this group's allocations into the Terminal Time-Plan.
// Slot assignment within the carrier is a simple running offset;
// disjointness across terminals is preserved by construction (each
// terminal's slots start where the previous terminal's ended).
func (c *Controller) fillPlan(plan *model.TimePlan, group *core.CarriersGroup, terminals []*core.TerminalContext) {
	var nextSlot uint16
	for _, t := range terminals {
		total := t.TotalAllocPktpf()
		if total == 0 {
			continue
		}
		plan.Assignments[t.TalID] = model.TerminalAllocation{
			TalID:     t.TalID,
			CarrierID: uint8(group.CarriersID),
			FirstSlot: nextSlot,
			NbSlots:   uint16(total),
			ModcodID:  group.Converter().CurrentModcod(),
		}
		nextSlot += uint16(total)
	}
}

func mustPktpfToKbps(conv *core.PerCarrierUnitConverter, pkt uint32, modcodID uint8) float64 {
	kbps, err := conv.PktpfToKbps(pkt, modcodID)
	if err != nil {
		return 0
	}
	return kbps
}
