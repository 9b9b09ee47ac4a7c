package timectrl

import (
	"context"
	"sync"
	"time"

	"github.com/lephus/opensand/internal/logging"
	"github.com/lephus/opensand/model"
)

// SimClock is an interface for accessing simulation time. This allows
// Scope 4 components (scheduler, agents) to depend on a clock abstraction
// rather than a concrete time controller type, enabling testability.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// After returns a channel that will receive the current simulation time
	// after the duration d has elapsed in simulation time. This will be
	// integrated with the event scheduler in later Scope 4 chunks.
	After(d time.Duration) <-chan time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated steps by Tick like RealTime; Start paces both modes with
	// the same wall-clock ticker of period Tick, so it does not run faster.
	Accelerated
)

// TimeController drives simulation time and notifies registered listeners.
// It implements SimClock for use by Scope 4 components.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	// currentTime tracks the current simulation time. It is updated
	// as the controller advances time.
	currentTime time.Time

	listeners []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime forces the current simulation time, e.g. to seed a test or to
// fast-forward across a gap with no listeners to notify.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// After returns a channel that will receive the current simulation time
// after the duration d has elapsed in simulation time. Implements SimClock.
//
// TODO: This will be integrated with the event scheduler in later Scope 4 chunks
// to fire timers when simulation time advances. For now, it returns a channel
// that will not fire automatically.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	// TODO: integrate with scheduler/timer registration so events fire when sim time advances.
	return ch
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller for the specified duration in a separate goroutine.
// It returns a channel that is closed when the controller finishes.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		simTime := tc.StartTime
		tc.currentTime = simTime
		tc.mu.Unlock()

		elapsed := time.Duration(0)

		// In both modes we use a ticker for simplicity and determinism.
		ticker := time.NewTicker(tc.Tick)
		defer ticker.Stop()

		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			<-ticker.C
			simTime = simTime.Add(tc.Tick)
			elapsed += tc.Tick

			// Update currentTime under lock
			tc.mu.Lock()
			tc.currentTime = simTime
			tc.mu.Unlock()

			for _, fn := range tc.listeners {
				fn(simTime)
			}
		}
	}()
	return done
}

// SofListener receives the Start-Of-Frame event for one superframe. It
// runs to completion before the next superframe's SofListener calls
// begin (the sync.WaitGroup barrier in SuperframeClock.fireSof), which
// is how the "all events of superframe S processed before S+1 begins
// allocation" ordering guarantee is enforced.
type SofListener func(ctx context.Context, sof *model.Sof, superframeNumber uint32)

// SuperframeClock drives the DVB-RCS2 superframe boundary signal on top
// of a TimeController tick source. It maintains the monotonic
// superframe counter and is idempotent against a duplicate or backwards
// SoF arriving out of band (testable property 8).
type SuperframeClock struct {
	tc  *TimeController
	log logging.Logger

	mu               sync.Mutex
	superframeNumber uint32
	started          bool
	listeners        []SofListener
}

// NewSuperframeClock builds a clock that fires one SoF per tc tick.
func NewSuperframeClock(tc *TimeController, log logging.Logger) *SuperframeClock {
	if log == nil {
		log = logging.Noop()
	}
	sc := &SuperframeClock{tc: tc, log: log}
	tc.AddListener(func(time.Time) { sc.fireSof(context.Background()) })
	return sc
}

// AddListener registers a callback to run on every SoF.
func (sc *SuperframeClock) AddListener(fn SofListener) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.listeners = append(sc.listeners, fn)
}

// CurrentSuperframe returns the most recently fired superframe number.
func (sc *SuperframeClock) CurrentSuperframe() uint32 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.superframeNumber
}

// fireSof advances the superframe counter and fans the SoF out to every
// listener, waiting for all of them to finish (the barrier) before
// returning, so the caller's next tick cannot start superframe S+1
// processing while S is still in flight.
func (sc *SuperframeClock) fireSof(ctx context.Context) {
	sc.mu.Lock()
	next := sc.superframeNumber + 1
	if !sc.started {
		next = 0
		sc.started = true
	}
	sc.superframeNumber = next
	listeners := append([]SofListener(nil), sc.listeners...)
	sc.mu.Unlock()

	sof := &model.Sof{
		Hdr:              model.FrameHeader{MessageType: model.MessageTypeSof},
		SuperframeNumber: next,
	}

	var wg sync.WaitGroup
	wg.Add(len(listeners))
	for _, fn := range listeners {
		fn := fn
		go func() {
			defer wg.Done()
			fn(ctx, sof, next)
		}()
	}
	wg.Wait()
}

// DeliverSof processes an externally-received SoF (e.g. from a replayed
// trace) instead of one generated by the local tick source. A duplicate
// or backwards SoF number relative to the current one is a no-op: the
// duplicate case simply re-delivers nothing (idempotent), and the
// backwards case is logged and ignored, per testable property 8.
func (sc *SuperframeClock) DeliverSof(ctx context.Context, superframeNumber uint32) {
	sc.mu.Lock()
	if sc.started && superframeNumber <= sc.superframeNumber {
		sc.mu.Unlock()
		if superframeNumber < sc.superframeNumber {
			sc.log.Warn(ctx, "backwards sof ignored",
				logging.Int("received", int(superframeNumber)), logging.Int("current", int(sc.superframeNumber)))
		}
		return
	}
	sc.superframeNumber = superframeNumber
	sc.started = true
	listeners := append([]SofListener(nil), sc.listeners...)
	sc.mu.Unlock()

	sof := &model.Sof{
		Hdr:              model.FrameHeader{MessageType: model.MessageTypeSof},
		SuperframeNumber: superframeNumber,
	}
	var wg sync.WaitGroup
	wg.Add(len(listeners))
	for _, fn := range listeners {
		fn := fn
		go func() {
			defer wg.Done()
			fn(ctx, sof, superframeNumber)
		}()
	}
	wg.Wait()
}
