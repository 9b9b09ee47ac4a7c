// Package kb holds the GW-owned TerminalRegistry: the authoritative map
// from tal_id to TerminalContext and TerminalCategory, with logon/logoff
// lifecycle and subscriber notifications for other blocks that need to
// react to a terminal coming or going (the scheduler's FIFO set, the
// Slotted-Aloha NCC side).
package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lephus/opensand/core"
)

// NccTalID is the tal_id reserved for the GW/NCC itself; no terminal may
// log on under it (spec's Logon error kind TalIdIsNcc).
const NccTalID uint16 = 31

// ErrDuplicateTalId is returned by Logon when tal_id is already
// registered.
var ErrDuplicateTalId = errors.New("tal_id already logged on")

// ErrTalIdIsNcc is returned by Logon when tal_id is the reserved NCC id.
var ErrTalIdIsNcc = errors.New("tal_id is reserved for the ncc")

// ErrUnknownCategory is returned by Logon when the requested category
// label has no matching TerminalCategory.
var ErrUnknownCategory = errors.New("unknown terminal category")

// EventType indicates what kind of registry change happened.
type EventType int

const (
	EventLogon EventType = iota
	EventLogoff
)

// Event is emitted to subscribers when a terminal logs on or off.
type Event struct {
	Type     EventType
	TalID    uint16
	Category string
}

// TerminalRegistry is the GW's in-memory, thread-safe store of
// TerminalCategory and TerminalContext. Categories are built once at init
// from configuration and handed to NewTerminalRegistry; they are not
// re-shaped at runtime (spec's Open Question resolution: re-shaping
// requires a full reset, i.e. a new registry).
type TerminalRegistry struct {
	mu sync.RWMutex

	categories map[string]*core.TerminalCategory
	owner      map[uint16]string // tal_id -> category label

	subs []func(Event)
}

// NewTerminalRegistry builds a registry over a fixed set of categories,
// keyed by their label.
func NewTerminalRegistry(categories []*core.TerminalCategory) *TerminalRegistry {
	byLabel := make(map[string]*core.TerminalCategory, len(categories))
	for _, c := range categories {
		byLabel[c.Label] = c
	}
	return &TerminalRegistry{
		categories: byLabel,
		owner:      make(map[uint16]string),
	}
}

// Category looks up a category by label.
func (r *TerminalRegistry) Category(label string) (*core.TerminalCategory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.categories[label]
	return c, ok
}

// Categories returns a snapshot slice of every registered category.
func (r *TerminalRegistry) Categories() []*core.TerminalCategory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.TerminalCategory, 0, len(r.categories))
	for _, c := range r.categories {
		out = append(out, c)
	}
	return out
}

// Logon admits a new terminal into categoryLabel, assigning it a fresh
// TerminalContext. It rejects a duplicate tal_id, the reserved NCC
// tal_id, or an unknown category without mutating any state.
func (r *TerminalRegistry) Logon(talID uint16, categoryLabel string, carrierID uint16, craKbps, maxRbdcKbps float64, maxVbdcPkt uint32) (*core.TerminalContext, error) {
	if talID == NccTalID {
		return nil, fmt.Errorf("%w: tal_id %d", ErrTalIdIsNcc, talID)
	}

	r.mu.Lock()
	if _, exists := r.owner[talID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: tal_id %d", ErrDuplicateTalId, talID)
	}
	category, ok := r.categories[categoryLabel]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, categoryLabel)
	}

	t := core.NewTerminalContext(talID, categoryLabel, craKbps, maxRbdcKbps, maxVbdcPkt)
	t.CarrierID = carrierID
	category.AddTerminal(t)
	r.owner[talID] = categoryLabel
	subs := append([]func(Event){}, r.subs...)
	r.mu.Unlock()

	event := Event{Type: EventLogon, TalID: talID, Category: categoryLabel}
	for _, sub := range subs {
		sub(event)
	}
	return t, nil
}

// Logoff removes talID from its category, if present. It is a no-op for
// an unknown tal_id (logging off twice is harmless).
func (r *TerminalRegistry) Logoff(talID uint16) {
	r.mu.Lock()
	categoryLabel, ok := r.owner[talID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.owner, talID)
	if category, ok := r.categories[categoryLabel]; ok {
		category.RemoveTerminal(talID)
	}
	subs := append([]func(Event){}, r.subs...)
	r.mu.Unlock()

	event := Event{Type: EventLogoff, TalID: talID, Category: categoryLabel}
	for _, sub := range subs {
		sub(event)
	}
}

// Terminal looks up a terminal by tal_id across every category.
func (r *TerminalRegistry) Terminal(talID uint16) (*core.TerminalContext, bool) {
	r.mu.RLock()
	categoryLabel, ok := r.owner[talID]
	if !ok {
		r.mu.RUnlock()
		return nil, false
	}
	category := r.categories[categoryLabel]
	r.mu.RUnlock()

	t, err := category.Terminal(talID)
	if err != nil {
		return nil, false
	}
	return t, true
}

// Subscribe registers a callback for logon/logoff events, returning an
// unsubscribe function. Callbacks run outside the registry's lock, so
// they may safely call back into the registry.
func (r *TerminalRegistry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
	idx := len(r.subs) - 1

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if idx < 0 || idx >= len(r.subs) {
			return
		}
		// Replace rather than remove, so the indices captured by other
		// subscriptions stay valid.
		r.subs[idx] = func(Event) {}
		idx = -1
	}
}
