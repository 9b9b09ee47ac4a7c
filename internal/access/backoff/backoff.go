// Package backoff implements the Slotted-Aloha contention-window backoff
// algorithms: binary exponential backoff (BEB) and exponential-increase
// exponential-decrease (EIED).
package backoff

import (
	"math"
	"math/rand"
)

// Algorithm is a pluggable Slotted-Aloha backoff state machine. SetOk and
// SetNok update the contention window and draw a new delay; Delay
// returns the most recently drawn value.
type Algorithm interface {
	SetOk()
	SetNok()
	Delay() uint32
}

// base holds the state and RNG shared by every variant: cw (contention
// window), cw_max, multiple, and the currently drawn delay.
type base struct {
	rng      *rand.Rand
	cw       uint32
	cwMax    uint32
	multiple uint32
	delay    uint32
}

func newBase(rng *rand.Rand, cwMax, multiple uint32) base {
	b := base{rng: rng, cw: 1, cwMax: cwMax, multiple: multiple}
	b.setRandom()
	return b
}

// setRandom draws a uniform integer in [0, cw) as the next transmission
// delay, in superframes.
func (b *base) setRandom() {
	if b.cw <= 1 {
		b.delay = 0
		return
	}
	b.delay = uint32(b.rng.Int63n(int64(b.cw)))
}

func (b *base) Delay() uint32 { return b.delay }

// beb is the binary exponential backoff variant: cw halves (divided by
// multiple, floored at 1) on success, grows by multiple (capped at
// cw_max) on failure.
type beb struct{ base }

// NewBeb builds a BEB backoff with the given cap and growth factor, using
// rng for delay draws (each block owns an independent PRNG per the
// concurrency model, for reproducibility across runs).
func NewBeb(rng *rand.Rand, cwMax, multiple uint32) Algorithm {
	b := &beb{newBase(rng, cwMax, multiple)}
	return b
}

func (b *beb) SetOk() {
	cw := b.cw / b.multiple
	if cw < 1 {
		cw = 1
	}
	b.cw = cw
	b.setRandom()
}

func (b *beb) SetNok() {
	cw := b.cw * b.multiple
	if cw > b.cwMax {
		cw = b.cwMax
	}
	b.cw = cw
	b.setRandom()
}

// eied is the exponential-increase exponential-decrease variant: cw
// grows by sqrt(multiple) on success and by multiple on failure, both
// capped at cw_max. Success still grows the window, just more slowly
// than a failure does.
type eied struct{ base }

// NewEied builds an EIED backoff with the given cap and growth factor.
func NewEied(rng *rand.Rand, cwMax, multiple uint32) Algorithm {
	e := &eied{newBase(rng, cwMax, multiple)}
	return e
}

func (e *eied) SetOk() {
	grown := float64(e.cw) * math.Sqrt(float64(e.multiple))
	cw := uint32(grown)
	if cw > e.cwMax {
		cw = e.cwMax
	}
	if cw < 1 {
		cw = 1
	}
	e.cw = cw
	e.setRandom()
}

func (e *eied) SetNok() {
	grown := e.cw * e.multiple
	cw := grown
	if cw > e.cwMax {
		cw = e.cwMax
	}
	e.cw = cw
	e.setRandom()
}
