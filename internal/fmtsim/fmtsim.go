// Package fmtsim implements per-terminal CNI evolution (C12): the input
// MODCOD each terminal should use next, driven from a file, a PRNG, or
// held static.
package fmtsim

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/lephus/opensand/core"
	"github.com/lephus/opensand/internal/logging"
)

// SourceKind selects how CNI values evolve between ticks.
type SourceKind uint8

const (
	SourceNone SourceKind = iota
	SourceFile
	SourceRandom
)

// Source produces the next ESN0/CNI sample (in dB) for a terminal.
type Source interface {
	Kind() SourceKind
	// Next returns the next CNI sample for talID, or ok=false if the
	// source has nothing new to report this tick (SourceNone always
	// returns false).
	Next(talID uint16) (cniDB float64, ok bool)
}

type noneSource struct{}

func (noneSource) Kind() SourceKind                      { return SourceNone }
func (noneSource) Next(uint16) (float64, bool)           { return 0, false }

// NewNoneSource builds a Source that never changes a terminal's MODCOD.
func NewNoneSource() Source { return noneSource{} }

// randomSource draws a uniform CNI in [minDB, maxDB) for every terminal,
// every tick.
type randomSource struct {
	rng   *rand.Rand
	minDB float64
	maxDB float64
}

// NewRandomSource builds a Source drawing from rng, uniform over
// [minDB, maxDB).
func NewRandomSource(rng *rand.Rand, minDB, maxDB float64) Source {
	return &randomSource{rng: rng, minDB: minDB, maxDB: maxDB}
}

func (s *randomSource) Kind() SourceKind { return SourceRandom }

func (s *randomSource) Next(uint16) (float64, bool) {
	return s.minDB + s.rng.Float64()*(s.maxDB-s.minDB), true
}

// fileRow is one scenario-file entry: a tick's CNI sample per terminal.
type fileRow map[uint16]float64

// fileSource replays a scenario file of per-tick, per-terminal CNI
// samples. When the file is exhausted it rewinds to the start and
// continues (the "MODCOD event file with loop" supplement the
// distillation dropped), logging FmtFileLooped once per rewind.
type fileSource struct {
	log  logging.Logger
	rows []fileRow
	pos  int
}

// NewFileSourceFromPath parses a scenario file where each line is
// "tick tal_id cni_db" and groups rows by tick in file order. This
// mirrors the original FmtSimulation scenario-file format closely
// enough for emulated nodes to stay self-consistent; it is not a
// bit-for-bit port.
func NewFileSourceFromPath(path string, log logging.Logger) (*fileSource, error) {
	if log == nil {
		log = logging.Noop()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fmtsim: open scenario file: %w", err)
	}
	defer f.Close()

	byTick := make(map[int]fileRow)
	var order []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("fmtsim: malformed scenario line %q", line)
		}
		tick, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("fmtsim: bad tick in %q: %w", line, err)
		}
		talID, err := strconv.ParseUint(fields[1], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("fmtsim: bad tal_id in %q: %w", line, err)
		}
		cni, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("fmtsim: bad cni in %q: %w", line, err)
		}
		row, ok := byTick[tick]
		if !ok {
			row = fileRow{}
			byTick[tick] = row
			order = append(order, tick)
		}
		row[uint16(talID)] = cni
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("fmtsim: read scenario file: %w", err)
	}

	rows := make([]fileRow, 0, len(order))
	for _, tick := range order {
		rows = append(rows, byTick[tick])
	}
	return &fileSource{log: log, rows: rows}, nil
}

func (s *fileSource) Kind() SourceKind { return SourceFile }

// Next returns talID's sample from the current row. It only advances the
// row position once per Tick call (see Simulation.Tick), not once per
// terminal lookup.
func (s *fileSource) Next(talID uint16) (float64, bool) {
	if len(s.rows) == 0 {
		return 0, false
	}
	cni, ok := s.rows[s.pos][talID]
	return cni, ok
}

// advance moves to the next row, rewinding (and logging FmtFileLooped)
// when the file is exhausted.
func (s *fileSource) advance(ctx context.Context) {
	s.pos++
	if s.pos >= len(s.rows) {
		s.pos = 0
		s.log.Info(ctx, "fmt file looped")
	}
}

// Simulation drives CNI evolution for a set of terminals against a
// shared ModcodTable and Source.
type Simulation struct {
	modcods   *core.ModcodTable
	source    Source
	log       logging.Logger
	overrides map[uint16]float64
}

// New builds a Simulation.
func New(modcods *core.ModcodTable, source Source, log logging.Logger) *Simulation {
	if log == nil {
		log = logging.Noop()
	}
	return &Simulation{modcods: modcods, source: source, log: log, overrides: make(map[uint16]float64)}
}

// RequireCni overrides the next Tick's sample for talID, e.g. because a
// Sac frame carried a fresher CNI reading than the configured source.
func (s *Simulation) RequireCni(talID uint16, cniDB float64) {
	s.overrides[talID] = cniDB
}

// Tick updates terminals' CurrentInputModcodID from the current CNI
// sample (an override takes priority over the source for this tick
// only), then advances file-backed sources to their next row.
func (s *Simulation) Tick(ctx context.Context, terminals []*core.TerminalContext) {
	for _, t := range terminals {
		cniDB, ok := s.overrides[t.TalID]
		delete(s.overrides, t.TalID)
		if !ok {
			cniDB, ok = s.source.Next(t.TalID)
		}
		if !ok {
			continue
		}
		id, err := s.modcods.BestIDFor(cniDB)
		if err != nil {
			s.log.Warn(ctx, "fmtsim: no modcod available for cni sample",
				logging.Int("tal_id", int(t.TalID)), logging.Any("cni_db", cniDB))
			continue
		}
		t.CurrentInputModcodID = id
	}

	if fs, ok := s.source.(*fileSource); ok {
		fs.advance(ctx)
	}
}
