package core

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownModcod is returned when a MODCOD id is not present in a table.
var ErrUnknownModcod = errors.New("unknown modcod id")

// ErrNoModcodAvailable is returned when no MODCOD in a table has a
// required ESN0 threshold at or below the given value.
var ErrNoModcodAvailable = errors.New("no modcod available for esn0")

// ModcodFamily tags which link direction/mode a ModcodDef belongs to.
// The return link (RCS2 bursts) and forward link (S2 BBFrames) use
// distinct tables; SCPC terminals may use either depending on config.
type ModcodFamily uint8

const (
	ModcodFamilyRcs2 ModcodFamily = iota
	ModcodFamilyS2
)

// ModcodDef is one immutable row of a ModcodTable: the id, spectral
// efficiency and the ESN0 threshold required to decode it.
type ModcodDef struct {
	ID                        uint8
	Family                    ModcodFamily
	SpectralEfficiencyBpsPerSym float64
	RequiredEsn0DB            float64
	BurstLengthSymbols        uint32
}

// ModcodTable is a static, ordered set of ModcodDef loaded once at init.
// Ids are expected to increase in spectral efficiency within a family;
// NewModcodTable enforces this so lookups by id and by ESN0 agree.
type ModcodTable struct {
	family ModcodFamily
	byID   map[uint8]ModcodDef
	sorted []ModcodDef // ascending by ID, which is ascending by efficiency
}

// NewModcodTable builds a table from defs, validating that no two defs
// share an id and that spectral efficiency strictly increases with id.
func NewModcodTable(family ModcodFamily, defs []ModcodDef) (*ModcodTable, error) {
	byID := make(map[uint8]ModcodDef, len(defs))
	sorted := make([]ModcodDef, len(defs))
	copy(sorted, defs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var prevEff float64
	for i, d := range sorted {
		if _, exists := byID[d.ID]; exists {
			return nil, fmt.Errorf("modcod table: duplicate id %d", d.ID)
		}
		if i > 0 && d.SpectralEfficiencyBpsPerSym <= prevEff {
			return nil, fmt.Errorf("modcod table: id %d does not strictly increase spectral efficiency over previous id", d.ID)
		}
		byID[d.ID] = d
		prevEff = d.SpectralEfficiencyBpsPerSym
	}

	return &ModcodTable{
		family: family,
		byID:   byID,
		sorted: sorted,
	}, nil
}

// Def looks up a MODCOD definition by id.
func (t *ModcodTable) Def(id uint8) (ModcodDef, error) {
	d, ok := t.byID[id]
	if !ok {
		return ModcodDef{}, fmt.Errorf("%w: id %d", ErrUnknownModcod, id)
	}
	return d, nil
}

// BestIDFor returns the highest MODCOD id whose required ESN0 threshold
// is at or below esn0DB. Ids are walked from the most robust (lowest)
// upward so the result is the best decodable MODCOD.
func (t *ModcodTable) BestIDFor(esn0DB float64) (uint8, error) {
	if len(t.sorted) == 0 || t.sorted[0].RequiredEsn0DB > esn0DB {
		return 0, fmt.Errorf("%w: esn0 %.2fdB", ErrNoModcodAvailable, esn0DB)
	}

	best := t.sorted[0]
	for _, d := range t.sorted {
		if d.RequiredEsn0DB <= esn0DB && d.ID > best.ID {
			best = d
		}
	}
	return best.ID, nil
}

// Family reports which link direction this table was built for.
func (t *ModcodTable) Family() ModcodFamily { return t.family }
