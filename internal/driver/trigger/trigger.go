// Package trigger implements the in-memory trigger matrix of spec.md
// §3/§4.3: up to 16 stages of 16-probe symbol cells, plus the terminal
// "simple" row, and the six derived 16-bit bit-planes serialized into
// the DSLogic FPGA settings frame. The base variant's software trigger
// does not use this model; it matches against the mask/value arrays of
// device.Context.
//
// The register-bitfield documentation style here (named bit predicates,
// one comment per derivation) is grounded on jbrzusto-ogdar/fpga/fpga.go's
// packed-register layout, adapted from mmap'd hardware fields to a
// software-only symbol matrix: this driver's trigger state never lives
// in device memory, it is only ever serialized to the wire for DSLogic
// (see internal/driver/dslogic).
package trigger

import "fmt"

// Stages is the number of addressable hardware trigger stages. Matrix
// row index Stages itself holds the "simple" trigger (spec.md §3).
const Stages = 16

// Probes is the number of probe columns in the symbol matrix.
const Probes = 16

// Mode selects between the single-stage simple trigger and the full
// multi-stage advanced trigger when serializing to the DSLogic
// settings frame.
type Mode int

const (
	Simple Mode = iota
	Advanced
)

// Symbol is the per-cell trigger alphabet of spec.md §3.
type Symbol byte

const (
	Zero    Symbol = '0'
	One     Symbol = '1'
	DontCare Symbol = 'X'
	Rising  Symbol = 'R'
	Falling Symbol = 'F'
	AnyEdge Symbol = 'C'
)

// Planes holds the six derived bit-planes for one stage, each a 16-bit
// word with bit i taken from probe column i.
type Planes struct {
	Mask0, Mask1   uint16
	Value0, Value1 uint16
	Edge0, Edge1   uint16
}

// Model is the full trigger configuration for one device: both symbol
// rows for every stage (plus the terminal simple row), per-stage
// counts/invert/logic, and the global enable/mode/position/active-stage
// settings.
type Model struct {
	trigger0 [Stages + 1][Probes]Symbol
	trigger1 [Stages + 1][Probes]Symbol

	Count  [Stages + 1]uint16
	Invert [Stages + 1]uint8
	Logic  [Stages + 1]uint8

	Enable       bool
	ModeSel      Mode
	Position     int // 0..100
	ActiveStages int
}

// New returns a Model in its post-reset state.
func New() *Model {
	m := &Model{}
	m.Reset()
	return m
}

// Reset implements spec.md §4.3's reset(): enable=0, mode=SIMPLE,
// position=0, stages=0, every cell set to don't-care, counts/inverts
// zeroed, and combining logic set to 1 for every row.
func (m *Model) Reset() {
	m.Enable = false
	m.ModeSel = Simple
	m.Position = 0
	m.ActiveStages = 0
	for s := 0; s <= Stages; s++ {
		for p := 0; p < Probes; p++ {
			m.trigger0[s][p] = DontCare
			m.trigger1[s][p] = DontCare
		}
		m.Count[s] = 0
		m.Invert[s] = 0
		m.Logic[s] = 1
	}
}

func validStageForWrite(stage int) error {
	// spec.md §9: the setters use stage < STAGES; stage == STAGES (the
	// simple row) is reserved for probe_set.
	if stage < 0 || stage >= Stages {
		return fmt.Errorf("stage %d out of range [0, %d)", stage, Stages)
	}
	return nil
}

func validStageForRead(stage int) error {
	// spec.md §9: accessors accept stage == STAGES as the simple row.
	if stage < 0 || stage > Stages {
		return fmt.Errorf("stage %d out of range [0, %d]", stage, Stages)
	}
	return nil
}

// StageSetSymbols writes both symbol rows for stage from interleaved
// source strings (one symbol per odd position, per spec.md §4.3), with
// the destination column mirrored: destination column probes-j-1
// receives source byte 2j.
func (m *Model) StageSetSymbols(stage, probes int, row0, row1 string) error {
	if err := validStageForWrite(stage); err != nil {
		return err
	}
	if probes <= 0 || probes > Probes {
		return fmt.Errorf("probes %d out of range (0, %d]", probes, Probes)
	}
	if err := setMirrored(m.trigger0[stage][:], row0, probes); err != nil {
		return err
	}
	return setMirrored(m.trigger1[stage][:], row1, probes)
}

func setMirrored(dst []Symbol, src string, probes int) error {
	for j := 0; j < probes; j++ {
		idx := 2 * j
		if idx >= len(src) {
			return fmt.Errorf("source row too short: need index %d, have length %d", idx, len(src))
		}
		dst[probes-j-1] = Symbol(src[idx])
	}
	return nil
}

// StageSetLogic sets the combining logic for stage (0 = AND, 1 = OR,
// per the device's own convention; this module does not interpret the
// value beyond serializing it).
func (m *Model) StageSetLogic(stage int, logic uint8) error {
	if err := validStageForWrite(stage); err != nil {
		return err
	}
	m.Logic[stage] = logic
	return nil
}

// StageSetInv sets the invert flags for stage.
func (m *Model) StageSetInv(stage int, inv uint8) error {
	if err := validStageForWrite(stage); err != nil {
		return err
	}
	m.Invert[stage] = inv
	return nil
}

// StageSetCount sets the repeat count for stage.
func (m *Model) StageSetCount(stage int, count uint16) error {
	if err := validStageForWrite(stage); err != nil {
		return err
	}
	m.Count[stage] = count
	return nil
}

// ProbeSet writes the terminal "simple" row (index Stages) at column
// probe, per spec.md §4.3.
func (m *Model) ProbeSet(probe int, sym0, sym1 Symbol) error {
	if probe < 0 || probe >= Probes {
		return fmt.Errorf("probe %d out of range [0, %d)", probe, Probes)
	}
	m.trigger0[Stages][probe] = sym0
	m.trigger1[Stages][probe] = sym1
	return nil
}

// SetStageCount sets the number of active advanced-mode stages.
func (m *Model) SetStageCount(stages int) error {
	if stages < 0 || stages > Stages {
		return fmt.Errorf("stages %d out of range [0, %d]", stages, Stages)
	}
	m.ActiveStages = stages
	return nil
}

// SetPosition sets the post-trigger buffer position, 0..100 percent.
func (m *Model) SetPosition(pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("position %d out of range [0, 100]", pct)
	}
	m.Position = pct
	return nil
}

// SetEnable toggles whether the trigger engine is armed at all.
func (m *Model) SetEnable(enable bool) { m.Enable = enable }

// SetMode selects SIMPLE vs ADVANCED serialization.
func (m *Model) SetMode(mode Mode) { m.ModeSel = mode }

// Derive computes the six bit-planes for stage, bit i of each plane
// taken from probe column i, per the predicate table of spec.md §3:
//
//	mask  <- cell in {X, C}
//	value <- cell in {1, R}
//	edge  <- cell in {R, F, C}
func (m *Model) Derive(stage int) (Planes, error) {
	if err := validStageForRead(stage); err != nil {
		return Planes{}, err
	}
	var p Planes
	for i := 0; i < Probes; i++ {
		s0 := m.trigger0[stage][i]
		s1 := m.trigger1[stage][i]
		bit := uint(i)
		p.Mask0 |= bitIf(isMask(s0)) << bit
		p.Mask1 |= bitIf(isMask(s1)) << bit
		p.Value0 |= bitIf(isValue(s0)) << bit
		p.Value1 |= bitIf(isValue(s1)) << bit
		p.Edge0 |= bitIf(isEdge(s0)) << bit
		p.Edge1 |= bitIf(isEdge(s1)) << bit
	}
	return p, nil
}

func isMask(s Symbol) bool  { return s == DontCare || s == AnyEdge }
func isValue(s Symbol) bool { return s == One || s == Rising }
func isEdge(s Symbol) bool  { return s == Rising || s == Falling || s == AnyEdge }

func bitIf(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

// SimpleRow returns a read-only view of the terminal simple-trigger row
// (index Stages) as two symbol arrays. DSLogic frame population does
// not read it; it derives the simple row's planes via Derive(Stages).
func (m *Model) SimpleRow() (row0, row1 [Probes]Symbol) {
	return m.trigger0[Stages], m.trigger1[Stages]
}
