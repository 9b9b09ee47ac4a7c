package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lephus/opensand/model"
)

// ErrFifoFull is returned by Push when the queue is already at MaxPkt.
var ErrFifoFull = errors.New("fifo full")

// ErrFifoEmpty is returned by Pop when there is nothing to dequeue.
var ErrFifoEmpty = errors.New("fifo empty")

// FifoElement is one packet held by a DvbFifo, queued between pipeline
// stages. Payload ownership transfers to whoever pops it.
type FifoElement struct {
	Payload []byte
}

// FifoStats is a snapshot of a DvbFifo's per-period counters, returned
// (and reset) by GetStatsContext.
type FifoStats struct {
	CurrentPkt   int
	CurrentBytes int
	InPkt        int
	OutPkt       int
	DropPkt      int
}

// DvbFifo is a thread-safe bounded queue of packets for one QoS class.
// All operations are protected by a single mutex; CurrentPkt always
// equals the number of queued elements and CurrentBytes always equals
// the sum of their payload lengths.
type DvbFifo struct {
	mu sync.Mutex

	qos    model.QosClass
	maxPkt int
	queue  []FifoElement

	currentBytes int
	cniCentibels int16
	cniSet       bool

	inPkt   int
	outPkt  int
	dropPkt int
}

// NewDvbFifo constructs an empty FIFO for the given QoS class, bounded to
// maxPkt elements.
func NewDvbFifo(qos model.QosClass, maxPkt int) *DvbFifo {
	return &DvbFifo{
		qos:    qos,
		maxPkt: maxPkt,
	}
}

// Qos returns the QoS class this FIFO serves.
func (f *DvbFifo) Qos() model.QosClass { return f.qos }

// MaxPkt returns the configured capacity.
func (f *DvbFifo) MaxPkt() int { return f.maxPkt }

// Push appends elem at the tail. It fails with ErrFifoFull (incrementing
// DropPkt) if the queue is already at capacity.
func (f *DvbFifo) Push(elem FifoElement) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queue) >= f.maxPkt {
		f.dropPkt++
		return fmt.Errorf("%w: qos %d at capacity %d", ErrFifoFull, f.qos, f.maxPkt)
	}
	f.queue = append(f.queue, elem)
	f.currentBytes += len(elem.Payload)
	f.inPkt++
	return nil
}

// PushFront reinserts a fragment at the head of the queue, e.g. the
// residue of a packet the scheduler could only partially fit into a
// slot budget. It does not count against the in-counter: the fragment
// was already counted when its parent packet was pushed.
func (f *DvbFifo) PushFront(elem FifoElement) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queue) >= f.maxPkt {
		f.dropPkt++
		return fmt.Errorf("%w: qos %d at capacity %d", ErrFifoFull, f.qos, f.maxPkt)
	}
	f.queue = append([]FifoElement{elem}, f.queue...)
	f.currentBytes += len(elem.Payload)
	return nil
}

// Pop removes and returns the head element, or ErrFifoEmpty.
func (f *DvbFifo) Pop() (FifoElement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queue) == 0 {
		return FifoElement{}, ErrFifoEmpty
	}
	elem := f.queue[0]
	f.queue = f.queue[1:]
	f.currentBytes -= len(elem.Payload)
	f.outPkt++
	return elem, nil
}

// Len returns the current number of queued elements.
func (f *DvbFifo) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// SetCni annotates the FIFO with the most recently observed CNI value,
// used by the scheduler for VBDC correction heuristics.
func (f *DvbFifo) SetCni(cniCentibels int16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cniCentibels = cniCentibels
	f.cniSet = true
}

// Cni returns the last annotated CNI value, if any.
func (f *DvbFifo) Cni() (int16, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cniCentibels, f.cniSet
}

// Clear empties the queue, e.g. on terminal logoff. It does not affect
// the per-period counters.
func (f *DvbFifo) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = nil
	f.currentBytes = 0
}

// GetStatsContext returns a snapshot of the FIFO's current occupancy and
// per-period counters, then resets the per-period counters (InPkt,
// OutPkt, DropPkt) to zero. CurrentPkt/CurrentBytes are not reset: they
// reflect live occupancy, not a period.
func (f *DvbFifo) GetStatsContext() FifoStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats := FifoStats{
		CurrentPkt:   len(f.queue),
		CurrentBytes: f.currentBytes,
		InPkt:        f.inPkt,
		OutPkt:       f.outPkt,
		DropPkt:      f.dropPkt,
	}
	f.inPkt, f.outPkt, f.dropPkt = 0, 0, 0
	return stats
}

// FifoSet groups the per-QoS DvbFifo instances belonging to one
// terminal (or one block), ordered by ascending QosClass so callers can
// drain highest-priority traffic first. This is the QoS-ordering
// supplement the distilled spec left implicit in "respecting QoS order".
type FifoSet struct {
	byQos map[model.QosClass]*DvbFifo
	order []model.QosClass
}

// NewFifoSet builds a FifoSet with one DvbFifo per qos, each bounded to
// maxPkt.
func NewFifoSet(qosClasses []model.QosClass, maxPkt int) *FifoSet {
	order := make([]model.QosClass, len(qosClasses))
	copy(order, qosClasses)
	sortQos(order)

	byQos := make(map[model.QosClass]*DvbFifo, len(order))
	for _, q := range order {
		byQos[q] = NewDvbFifo(q, maxPkt)
	}
	return &FifoSet{byQos: byQos, order: order}
}

func sortQos(qs []model.QosClass) {
	for i := 1; i < len(qs); i++ {
		for j := i; j > 0 && qs[j-1] > qs[j]; j-- {
			qs[j-1], qs[j] = qs[j], qs[j-1]
		}
	}
}

// Fifo returns the DvbFifo for qos, or nil if qos is not part of the set.
func (s *FifoSet) Fifo(qos model.QosClass) *DvbFifo {
	return s.byQos[qos]
}

// Ordered returns the FIFOs in ascending QosClass order (highest
// priority first).
func (s *FifoSet) Ordered() []*DvbFifo {
	out := make([]*DvbFifo, 0, len(s.order))
	for _, q := range s.order {
		out = append(out, s.byQos[q])
	}
	return out
}

// TotalLen returns the sum of Len() across all FIFOs in the set, used
// for VBDC request correction against actual queue occupancy.
func (s *FifoSet) TotalLen() int {
	total := 0
	for _, f := range s.byQos {
		total += f.Len()
	}
	return total
}
