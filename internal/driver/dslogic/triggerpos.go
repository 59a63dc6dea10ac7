package dslogic

import (
	"encoding/binary"
	"fmt"
)

// TriggerPosBlockSize is the size of the first-block payload carried in
// a trigger-position report, per spec.md §6.3.
const TriggerPosBlockSize = 504

// TriggerPosReportSize is the total wire size of a trigger-position
// report: two u32 fields followed by the first-block payload.
const TriggerPosReportSize = 4 + 4 + TriggerPosBlockSize

// TriggerPos is the decoded trigger-position report read back from the
// device after a triggered acquisition, per spec.md §6.3.
type TriggerPos struct {
	RealPos    uint32
	RAMSAddr   uint32
	FirstBlock [TriggerPosBlockSize]byte
}

// DecodeTriggerPos parses a raw trigger-position report. It returns an
// error if buf is shorter than TriggerPosReportSize; a longer buf is
// accepted and any trailing bytes are ignored.
func DecodeTriggerPos(buf []byte) (TriggerPos, error) {
	if len(buf) < TriggerPosReportSize {
		return TriggerPos{}, fmt.Errorf("dslogic: short trigger-position buffer: got %d, want %d", len(buf), TriggerPosReportSize)
	}
	var tp TriggerPos
	tp.RealPos = binary.LittleEndian.Uint32(buf[0:4])
	tp.RAMSAddr = binary.LittleEndian.Uint32(buf[4:8])
	copy(tp.FirstBlock[:], buf[8:8+TriggerPosBlockSize])
	return tp, nil
}
