package dslogic_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx2lafw/internal/driver/dslogic"
	"fx2lafw/internal/driver/trigger"
)

func TestBuildProducesFixedSizeFrame(t *testing.T) {
	buf := dslogic.Build(dslogic.Settings{
		Mode:         dslogic.ModeLogic,
		SampleRateHz: 100_000_000,
		LimitSamples: 1000,
	})
	assert.Len(t, buf, dslogic.FrameSize)
	assert.Equal(t, uint32(0xFFFFFFFF), binary.LittleEndian.Uint32(buf[0:4]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(buf[len(buf)-4:]), "frame must end with end_sync")
}

func TestBuildDividerIsCeilingOfHundredMHzOverRate(t *testing.T) {
	buf := dslogic.Build(dslogic.Settings{SampleRateHz: 25_000_000, LimitSamples: 10})
	// divider header is at byte 8, divider value at byte 12.
	divider := binary.LittleEndian.Uint32(buf[12:16])
	assert.Equal(t, uint32(4), divider)
}

// TestBuildSimpleTriggerMatchesWorkedExample reproduces spec.md §8
// scenario 5 verbatim: probe_set(0, 'R', 'R') in SIMPLE mode must
// yield trig_mask0[0]=0, trig_value0[0]=1, trig_edge0[0]=1, and
// planes 1..3 must stay inert (mask=1).
func TestBuildSimpleTriggerMatchesWorkedExample(t *testing.T) {
	tg := trigger.New()
	require.NoError(t, tg.ProbeSet(0, trigger.Rising, trigger.Rising))
	tg.SetEnable(true)
	tg.SetMode(trigger.Simple)

	buf := dslogic.Build(dslogic.Settings{SampleRateHz: 100_000_000, LimitSamples: 10, Trigger: tg})

	mask0 := sectionValue(buf, 0x1010FFFF, 0)
	value0 := sectionValue(buf, 0x1410FFFF, 0)
	edge0 := sectionValue(buf, 0x1810FFFF, 0)
	assert.Equal(t, uint16(0), mask0&1, "trig_mask0[0]")
	assert.Equal(t, uint16(1), value0&1, "trig_value0[0]")
	assert.Equal(t, uint16(1), edge0&1, "trig_edge0[0]")

	for i := 1; i < dslogic.NumTriggerPlanes; i++ {
		assert.Equal(t, uint16(1), sectionValue(buf, 0x1010FFFF, i), "plane %d mask0 must stay inert", i)
		assert.Equal(t, uint16(1), sectionValue(buf, 0x1110FFFF, i), "plane %d mask1 must stay inert", i)
	}
}

func TestBuildAdvancedTriggerPopulatesAllPlanes(t *testing.T) {
	tg := trigger.New()
	require.NoError(t, tg.StageSetSymbols(0, 1, "1", "1"))
	require.NoError(t, tg.StageSetSymbols(1, 1, "1", "1"))
	tg.SetMode(trigger.Advanced)
	require.NoError(t, tg.SetStageCount(2))

	buf := dslogic.Build(dslogic.Settings{SampleRateHz: 100_000_000, LimitSamples: 10, Trigger: tg})
	maskOff := findSection(buf, 0x1010FFFF)
	require.NotEqual(t, -1, maskOff)
	p0 := binary.LittleEndian.Uint16(buf[maskOff : maskOff+2])
	p1 := binary.LittleEndian.Uint16(buf[maskOff+2 : maskOff+4])
	assert.NotEqual(t, uint16(0xFFFF), p0)
	assert.NotEqual(t, uint16(0xFFFF), p1)
}

func findSection(buf []byte, header uint32) int {
	for i := 0; i+4 <= len(buf); i++ {
		if binary.LittleEndian.Uint32(buf[i:i+4]) == header {
			return i + 4
		}
	}
	return -1
}

// sectionValue reads the index-th u16 value out of the plane section
// identified by header.
func sectionValue(buf []byte, header uint32, index int) uint16 {
	off := findSection(buf, header)
	if off == -1 {
		return 0
	}
	return binary.LittleEndian.Uint16(buf[off+index*2 : off+index*2+2])
}

func TestDecodeTriggerPosRejectsShortBuffer(t *testing.T) {
	_, err := dslogic.DecodeTriggerPos(make([]byte, 10))
	assert.Error(t, err)
}

func TestDecodeTriggerPosParsesFields(t *testing.T) {
	buf := make([]byte, dslogic.TriggerPosReportSize)
	binary.LittleEndian.PutUint32(buf[0:4], 1234)
	binary.LittleEndian.PutUint32(buf[4:8], 5678)
	buf[8] = 0xAB

	tp, err := dslogic.DecodeTriggerPos(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(1234), tp.RealPos)
	assert.Equal(t, uint32(5678), tp.RAMSAddr)
	assert.Equal(t, byte(0xAB), tp.FirstBlock[0])
}

func TestCheckTestSamplesFindsFirstMismatch(t *testing.T) {
	samples := []uint16{10, 11, 12, 99, 14}
	idx := dslogic.CheckTestSamples(samples, 10)
	assert.Equal(t, 3, idx)
}

func TestCheckTestSamplesWrapsAtModulus(t *testing.T) {
	samples := []uint16{65000, 0, 1}
	idx := dslogic.CheckTestSamples(samples, 65000)
	assert.Equal(t, -1, idx)
}

func TestCheckTestSamplesAllMatch(t *testing.T) {
	samples := []uint16{0, 1, 2, 3}
	assert.Equal(t, -1, dslogic.CheckTestSamples(samples, 0))
}
