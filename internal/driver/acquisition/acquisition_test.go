package acquisition

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx2lafw/internal/driver/device"
	"fx2lafw/internal/driver/dslogic"
	"fx2lafw/internal/driver/packet"
	"fx2lafw/internal/driver/transport"
)

func newDC(limit uint64) *device.Context {
	dc := device.NewContext(&device.DefaultProfiles[0])
	dc.LimitSamples = limit
	dc.TriggerStage = device.TriggerFired
	return dc
}

func TestProcessDataTruncatesAtLimitAndAborts(t *testing.T) {
	dc := newDC(10)
	var got []packet.Packet
	dc.Consumer = func(p packet.Packet) { got = append(got, p) }

	done := processData(dc, make([]byte, 15), 1, false)
	assert.True(t, done)
	require.Len(t, got, 1)
	assert.Equal(t, packet.Logic, got[0].Kind)
	assert.Len(t, got[0].Data, 10)
	assert.Equal(t, int64(10), dc.NumSamples)
}

func TestProcessDataFiresSingleStageTrigger(t *testing.T) {
	dc := newDC(0)
	dc.TriggerStage = 0
	dc.TriggerMask[0] = 1
	dc.TriggerValue[0] = 1

	var got []packet.Packet
	dc.Consumer = func(p packet.Packet) { got = append(got, p) }

	done := processData(dc, []byte{0, 0, 0, 1, 2, 3}, 1, false)
	assert.False(t, done)
	require.Len(t, got, 3)
	assert.Equal(t, packet.Trigger, got[0].Kind)
	assert.Equal(t, packet.Logic, got[1].Kind)
	assert.Equal(t, []byte{1}, got[1].Data, "pre-trigger capture holds exactly the matched sample")
	assert.Equal(t, packet.Logic, got[2].Kind)
	assert.Equal(t, []byte{2, 3}, got[2].Data, "tail beyond the trigger offset is emitted separately")
}

func TestMatchTriggerRollsBackOnPartialMismatch(t *testing.T) {
	dc := newDC(0)
	dc.TriggerStage = 0
	for i := 0; i < 3; i++ {
		dc.TriggerMask[i] = 1
	}
	dc.TriggerMask[3] = 1
	dc.TriggerValue[3] = 1

	fired, tailStart := matchTrigger(dc, []byte{0, 0, 0, 0, 1}, 1)
	assert.True(t, fired, "suffix 0,0,0,1 of the stream must still fire despite the leading extra 0")
	assert.Equal(t, 5, tailStart)
	assert.Equal(t, device.TriggerFired, dc.TriggerStage)
}

func TestAbortIsIdempotent(t *testing.T) {
	f := transport.NewFake()
	dc := newDC(0)
	h, _ := f.Open(context.Background(), transport.DeviceRef{}, 0)
	dc.Handle = h

	ends := 0
	dc.Consumer = func(p packet.Packet) {
		if p.Kind == packet.End {
			ends++
		}
	}
	tr := &device.Transfer{}
	dc.Transfers = []*device.Transfer{tr}
	dc.TransfersSubmitted = 1

	Abort(f, dc)
	Abort(f, dc) // idempotent: must not panic or double-act
	assert.Equal(t, int64(-1), dc.NumSamples)

	freeTransfer(f, dc, tr)
	assert.Equal(t, 1, ends, "END must be emitted exactly once")
}

func TestSolveSamplerateRejectsHighRateInWideMode(t *testing.T) {
	_, _, err := SolveSamplerate(24_000_000, true)
	assert.Error(t, err)
}

func TestSolveSamplerateIsIdempotent(t *testing.T) {
	d1, c1, err1 := SolveSamplerate(1_000_000, false)
	require.NoError(t, err1)
	d2, c2, err2 := SolveSamplerate(1_000_000, false)
	require.NoError(t, err2)
	assert.Equal(t, d1, d2)
	assert.Equal(t, c1, c2)
}

func TestSolveSamplerateFallsThroughTo30MHz(t *testing.T) {
	// 48MHz/25kHz - 1 = 1919, over MAX_SAMPLE_DELAY: must fall through.
	_, clk, err := SolveSamplerate(25_000, false)
	require.NoError(t, err)
	assert.Equal(t, Clock30MHz, clk)
}

func TestSolveSamplerateFailsWhenNotExpressible(t *testing.T) {
	_, _, err := SolveSamplerate(7_000_000, false)
	assert.Error(t, err)
}

func TestConfigureChannelsSetsSampleWideForHighIndexChannel(t *testing.T) {
	dc := newDC(0)
	dc.Channels = []device.Channel{{Index: 0, Enabled: true}, {Index: 9, Enabled: true}}
	require.NoError(t, ConfigureChannels(dc))
	assert.True(t, dc.SampleWide)
	assert.Equal(t, device.TriggerFired, dc.TriggerStage, "no channel carries a trigger string")
}

func TestConfigureChannelsProgramsTriggerStagesFromString(t *testing.T) {
	dc := newDC(0)
	dc.Channels = []device.Channel{{Index: 2, Enabled: true, Trigger: "01"}}
	require.NoError(t, ConfigureChannels(dc))
	assert.Equal(t, 0, dc.TriggerStage)
	assert.Equal(t, uint16(1<<2), dc.TriggerMask[0])
	assert.Equal(t, uint16(0), dc.TriggerValue[0])
	assert.Equal(t, uint16(1<<2), dc.TriggerMask[1])
	assert.Equal(t, uint16(1<<2), dc.TriggerValue[1])
}

func TestConfigureChannelsRejectsOverlongTriggerString(t *testing.T) {
	dc := newDC(0)
	dc.Channels = []device.Channel{{Index: 0, Enabled: true, Trigger: "01010"}}
	assert.Error(t, ConfigureChannels(dc))
}

func wordsToBytes(words ...uint16) []byte {
	buf := make([]byte, len(words)*2)
	for i, w := range words {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], w)
	}
	return buf
}

func TestCheckTestModeIgnoredWhenTestModeNone(t *testing.T) {
	dc := newDC(0)
	checkTestMode(dc, wordsToBytes(0, 99, 2), 2)
	assert.False(t, dc.TestSeeded, "TEST_MODE=None must never seed or check")
}

func TestCheckTestModeSeedsFromFirstObservedValue(t *testing.T) {
	dc := newDC(0)
	dc.DSLogicTest = dslogic.TestInternal
	checkTestMode(dc, wordsToBytes(500, 501, 502, 503), 2)
	assert.True(t, dc.TestSeeded)
	assert.Equal(t, uint16(504), dc.TestNextExpected)
}

func TestCheckTestModeAdvancesAcrossTransferBoundaries(t *testing.T) {
	dc := newDC(0)
	dc.DSLogicTest = dslogic.TestInternal
	checkTestMode(dc, wordsToBytes(0, 1, 2), 2)
	checkTestMode(dc, wordsToBytes(3, 4, 5), 2)
	assert.Equal(t, uint16(6), dc.TestNextExpected)
}

func TestCheckTestModeLogsMismatchAndContinuesInInternalMode(t *testing.T) {
	dc := newDC(0)
	dc.DSLogicTest = dslogic.TestInternal
	checkTestMode(dc, wordsToBytes(0, 1, 99, 3), 2)
	// the counter keeps advancing deterministically regardless of the mismatch.
	assert.Equal(t, uint16(4), dc.TestNextExpected)
}

func TestCheckTestModeStopsAtFirstMismatchInExternalMode(t *testing.T) {
	dc := newDC(0)
	dc.DSLogicTest = dslogic.TestExternal
	checkTestMode(dc, wordsToBytes(0, 1, 99, 77), 2)
	// the running counter still advances so the next transfer stays aligned,
	// even though no further samples in this transfer were checked.
	assert.Equal(t, uint16(4), dc.TestNextExpected)
}

func TestCheckTestModeWrapsAtModulus(t *testing.T) {
	dc := newDC(0)
	dc.DSLogicTest = dslogic.TestInternal
	checkTestMode(dc, wordsToBytes(65000, 0, 1), 2)
	assert.Equal(t, uint16(2), dc.TestNextExpected)
}
