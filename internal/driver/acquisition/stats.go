package acquisition

import "fx2lafw/internal/driver/device"

// Stats is a point-in-time copy of a Context's acquisition progress,
// safe to hand to a caller without exposing the live Context (whose
// fields mutate from completion callbacks). Grounded on
// guiperry-HASHER/internal/driver/device/controller.go's
// DeviceStatsSnapshot, which exists for the same reason: return a
// value type so callers can't accidentally alias mutable driver state.
type Stats struct {
	Substate           device.Substate
	NumSamples         int64
	LimitSamples       uint64
	TransfersInFlight  int
	EmptyTransferCount int
}

// SnapshotStats copies the progress fields out of dc.
func SnapshotStats(dc *device.Context) Stats {
	return Stats{
		Substate:           dc.Substate,
		NumSamples:         dc.NumSamples,
		LimitSamples:       dc.LimitSamples,
		TransfersInFlight:  len(dc.Transfers),
		EmptyTransferCount: dc.EmptyTransferCount,
	}
}
