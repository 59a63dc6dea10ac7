package trigger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx2lafw/internal/driver/trigger"
)

func TestResetProducesNeutralPlanes(t *testing.T) {
	m := trigger.New()
	for stage := 0; stage <= trigger.Stages; stage++ {
		p, err := m.Derive(stage)
		require.NoError(t, err)
		assert.Equal(t, uint16(0xFFFF), p.Mask0, "stage %d", stage)
		assert.Equal(t, uint16(0xFFFF), p.Mask1, "stage %d", stage)
		assert.Equal(t, uint16(0x0000), p.Value0, "stage %d", stage)
		assert.Equal(t, uint16(0x0000), p.Value1, "stage %d", stage)
		assert.Equal(t, uint16(0x0000), p.Edge0, "stage %d", stage)
		assert.Equal(t, uint16(0x0000), p.Edge1, "stage %d", stage)
	}
}

func TestSymbolPredicates(t *testing.T) {
	cases := []struct {
		sym                trigger.Symbol
		mask, value, edge  uint16
	}{
		{trigger.DontCare, 1, 0, 0},
		{trigger.One, 0, 1, 0},
		{trigger.Rising, 0, 1, 1},
		{trigger.Falling, 0, 0, 1},
		{trigger.AnyEdge, 1, 0, 1},
		{trigger.Zero, 0, 0, 0},
	}
	for _, c := range cases {
		m := trigger.New()
		require.NoError(t, m.ProbeSet(0, c.sym, c.sym))
		p, err := m.Derive(trigger.Stages)
		require.NoError(t, err)
		// Probe 0 lands in bit 0 of the plane (spec.md §8 scenario 5).
		assert.Equal(t, c.mask, p.Mask0&1, "symbol %q mask0", c.sym)
		assert.Equal(t, c.value, p.Value0&1, "symbol %q value0", c.sym)
		assert.Equal(t, c.edge, p.Edge0&1, "symbol %q edge0", c.sym)
		assert.Equal(t, c.mask, p.Mask1&1, "symbol %q mask1", c.sym)
		assert.Equal(t, c.value, p.Value1&1, "symbol %q value1", c.sym)
		assert.Equal(t, c.edge, p.Edge1&1, "symbol %q edge1", c.sym)
	}
}

func TestDeriveIsPureAndTotalWithinPrecondition(t *testing.T) {
	m := trigger.New()
	require.NoError(t, m.StageSetSymbols(2, 4, "0102030X", "0102030X"))
	p1, err := m.Derive(2)
	require.NoError(t, err)

	// Changing stage 2's invert flags and combining logic (fields other
	// than its symbol cells) must not change its derived planes.
	require.NoError(t, m.StageSetInv(2, 0xFF))
	require.NoError(t, m.StageSetLogic(2, 0))
	p2, err := m.Derive(2)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)

	_, err = m.Derive(trigger.Stages + 1)
	assert.Error(t, err)
}

func TestStageWriteRejectsSimpleRowIndex(t *testing.T) {
	m := trigger.New()
	err := m.StageSetSymbols(trigger.Stages, 1, "01", "01")
	assert.Error(t, err, "writes to the simple row must go through ProbeSet")
}

func TestStageSetSymbolsMirroring(t *testing.T) {
	m := trigger.New()
	// probes=2: dest col (2-0-1)=1 gets src[0]='0'; dest col (2-1-1)=0 gets src[2]='1'.
	require.NoError(t, m.StageSetSymbols(0, 2, "0X1X", "0X1X"))
	p, err := m.Derive(0)
	require.NoError(t, err)
	// col0 -> '1' -> value bit set at bit0; col1 -> '0' -> value bit clear at bit1.
	assert.Equal(t, uint16(1), p.Value0&1)
	assert.Equal(t, uint16(0), (p.Value0>>1)&1)
}

func TestPopcountInvariant(t *testing.T) {
	m := trigger.New()
	require.NoError(t, m.StageSetSymbols(0, 16, "01X1R0F1C0X1R0F1C0X1R0F1C0X1R0F1", "01X1R0F1C0X1R0F1C0X1R0F1C0X1R0F1"))
	for stage := 0; stage <= trigger.Stages; stage++ {
		p, err := m.Derive(stage)
		require.NoError(t, err)
		assert.LessOrEqual(t, popcount(p.Mask0)+popcount(p.Value0), 16)
		assert.LessOrEqual(t, popcount(p.Mask1)+popcount(p.Value1), 16)
	}
}

func popcount(v uint16) int {
	n := 0
	for v != 0 {
		n += int(v & 1)
		v >>= 1
	}
	return n
}
