package device

import (
	"log"

	"fx2lafw/internal/driver/dslogic"
	"fx2lafw/internal/driver/packet"
	"fx2lafw/internal/driver/transport"
	"fx2lafw/internal/driver/trigger"
)

// NumTriggerStages bounds the base variant's software trigger, per
// spec.md §3 (distinct from trigger.Stages, which bounds the DSLogic
// FPGA trigger matrix).
const NumTriggerStages = 4

// TriggerFired is the trigger-stage cursor sentinel meaning "already
// matched"; subsequent samples are all emitted without further
// matching.
const TriggerFired = -1

// Substate is the acquisition state machine position of spec.md §4.4.
type Substate int

const (
	SubstateInactive Substate = iota
	SubstateInit
	SubstateStart
	SubstateTriggered
	SubstateData
	SubstateStop
	SubstateError
)

func (s Substate) String() string {
	switch s {
	case SubstateInactive:
		return "INACTIVE"
	case SubstateInit:
		return "INIT"
	case SubstateStart:
		return "START"
	case SubstateTriggered:
		return "TRIGGERED"
	case SubstateData:
		return "DATA"
	case SubstateStop:
		return "STOP"
	case SubstateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Transfer is one in-flight bulk transfer entry, per spec.md §3. The
// buffer is owned by this slot until the completion callback frees it.
type Transfer struct {
	Handle transport.TransferHandle
	Buffer []byte
}

// Context is the mutable per-device state of spec.md §3 (named
// "Device Context" there; renamed here to avoid shadowing
// context.Context, see DESIGN.md).
type Context struct {
	Profile *Profile
	Bus     uint8
	Address uint8
	Handle  transport.Handle

	Channels []Channel

	// FirmwareUpdatedUsec is a monotonic microsecond timestamp, zero if
	// firmware was never (re)loaded this session.
	FirmwareUpdatedUsec uint64

	SampleRate   uint64
	LimitSamples uint64
	SampleWide   bool
	NumSamples   int64 // -1 is the "acquisition ended" sentinel (spec.md §3 invariants)

	TriggerMask  [NumTriggerStages]uint16
	TriggerValue [NumTriggerStages]uint16
	TriggerStage int

	// PreTrigger holds the samples consumed while stages 0..k-1 were
	// being matched, so they can be re-emitted once the trigger fires.
	PreTrigger []byte

	Transfers          []*Transfer
	TransfersSubmitted int
	EmptyTransferCount int

	Consumer packet.Consumer

	// DSLogic-only fields; zero-valued and unused on base-variant
	// devices.
	DSLogicMode        dslogic.OperatingMode
	DSLogicTest        dslogic.TestMode
	DSLogicExternalClk bool

	// TestSeeded/TestNextExpected track the running self-test arithmetic
	// progression across transfer boundaries, per spec.md §4.5: seeded
	// once from the first observed sample, then advanced deterministically
	// regardless of mismatches.
	TestSeeded       bool
	TestNextExpected uint16

	Substate Substate

	Trigger *trigger.Model

	// Logger receives the acquisition's state-transition lines and its
	// failed transfer submissions and control requests, per SPEC_FULL.md
	// A.1. Nil means log.Default(), matching the teacher's bare
	// log.Printf calls.
	Logger *log.Logger
}

// NewContext returns a Context ready for Scan/Open to populate,
// wrapping profile p.
func NewContext(p *Profile) *Context {
	return &Context{
		Profile:      p,
		TriggerStage: TriggerFired,
		Trigger:      trigger.New(),
	}
}

// Logf writes one log line through Logger (or log.Default() if nil).
func (dc *Context) Logf(format string, args ...any) {
	l := dc.Logger
	if l == nil {
		l = log.Default()
	}
	l.Printf(format, args...)
}
