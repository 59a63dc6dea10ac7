// Package packet implements the Packet Emission component of spec.md
// §4.5: typed frames handed to a single consumer callback supplied by
// the caller at acquisition start. There is no internal queue or
// background dispatch here, mirroring the single-callback shape of
// guiperry-HASHER/internal/driver/device/server.go's request/response
// methods — the difference is this consumer is invoked repeatedly,
// from whatever goroutine calls transport.USB.Poll, rather than once
// per RPC.
package packet

// Kind identifies which packet variant a Packet carries.
type Kind int

const (
	Header Kind = iota
	Logic
	Analog
	Trigger
	FrameBegin
	FrameEnd
	End
)

func (k Kind) String() string {
	switch k {
	case Header:
		return "HEADER"
	case Logic:
		return "LOGIC"
	case Analog:
		return "ANALOG"
	case Trigger:
		return "TRIGGER"
	case FrameBegin:
		return "FRAME_BEGIN"
	case FrameEnd:
		return "FRAME_END"
	case End:
		return "END"
	default:
		return "UNKNOWN"
	}
}

// MeasuredQuantity names what an Analog packet's samples represent.
// The core only forwards whatever the caller configured; it assigns
// no meaning to these values itself.
type MeasuredQuantity int

// Packet is the single wire type handed to a Consumer. Only the fields
// relevant to Kind are populated; the rest are zero.
type Packet struct {
	Kind Kind

	// LOGIC / ANALOG
	Data     []byte
	UnitSize int // LOGIC: bytes per sample (1 or 8/16-bit-wide -> 1 or 2)
	Samples  int // ANALOG: number of samples represented by Data

	MeasuredQuantity MeasuredQuantity
	QuantityFlags    uint32

	// TRIGGER
	TriggerPayload []byte // optional, e.g. a DSLogic trigger-position report
}

// Consumer receives every Packet emitted during one acquisition, in
// order. HEADER is always first; END is always last and emitted
// exactly once (spec.md §4.5).
type Consumer func(Packet)

// NewHeader builds a HEADER packet.
func NewHeader() Packet { return Packet{Kind: Header} }

// NewEnd builds the terminal END packet.
func NewEnd() Packet { return Packet{Kind: End} }

// NewFrameBegin/NewFrameEnd bracket one logical acquisition frame. The
// acquisition paths in this module do not emit them.
func NewFrameBegin() Packet { return Packet{Kind: FrameBegin} }
func NewFrameEnd() Packet   { return Packet{Kind: FrameEnd} }

// NewTrigger builds a TRIGGER packet, optionally carrying payload (the
// DSLogic trigger-position report forwarded verbatim, or nil for the
// base variant's software trigger).
func NewTrigger(payload []byte) Packet {
	return Packet{Kind: Trigger, TriggerPayload: payload}
}

// NewLogic builds a LOGIC packet. data's length must be a multiple of
// unitSize; callers are responsible for truncating at sample
// boundaries before calling this.
func NewLogic(data []byte, unitSize int) Packet {
	return Packet{Kind: Logic, Data: data, UnitSize: unitSize}
}

// NewAnalog builds an ANALOG packet.
func NewAnalog(data []byte, samples int, quantity MeasuredQuantity, flags uint32) Packet {
	return Packet{Kind: Analog, Data: data, Samples: samples, MeasuredQuantity: quantity, QuantityFlags: flags}
}
