// Package acquisition implements the Acquisition State Machine of
// spec.md §4.4: per-device start/completion/abort for both the base
// variant (single-phase, software-triggered) and the DSLogic variant
// (two-phase, FPGA-triggered), plus the samplerate solver of §4.4.1
// step 2.
//
// The lifecycle/stats-snapshot shape here is grounded on
// guiperry-HASHER/internal/driver/device/controller.go's Device
// struct (isOperational flag, DeviceStats snapshot pattern, reused
// below as Stats) and its single-callback dispatch in
// internal/driver/device/server.go, generalized from one RPC response
// per call to one packet.Consumer invocation per emitted Packet.
package acquisition

// Vendor control request codes, per spec.md §6.1. Base and DSLogic
// variants disagree on which code means START vs GET_REVID.
const (
	ReqStartBase       uint8 = 0xB1
	ReqGetRevIDBase    uint8 = 0xB2
	ReqGetRevIDDSLogic uint8 = 0xB1
	ReqStartDSLogic    uint8 = 0xB2
	ReqFPGAConfig      uint8 = 0xB3
	ReqFPGASetting     uint8 = 0xB4
)

// flags bits for CMD_START, per spec.md §6.1.
const (
	flagSampleWide uint8 = 1 << 5 // 0 = 8-bit, 1 = 16-bit
	flagClock48    uint8 = 1 << 6 // 0 = 30MHz, 1 = 48MHz
)

// Endpoint addresses, per spec.md §6.1. The USB IN bit (0x80) is
// already folded into the *In constants so they can be passed directly
// to transport.USB.BulkSubmit.
const (
	EndpointBaseDataIn    uint8 = 0x82
	EndpointDSLogicDataIn uint8 = 0x86
	EndpointOut           uint8 = 0x02
)

// NumSimulTransfers/MaxEmptyTransfers bound the in-flight transfer
// pool and the empty-transfer tolerance, per spec.md §4.4.1.
const (
	NumSimulTransfers = 32
	MaxEmptyTransfers = 2 * NumSimulTransfers
)

// MaxSampleDelay bounds the 48MHz samplerate candidate, per spec.md §4.4.1.
const MaxSampleDelay = 1536
