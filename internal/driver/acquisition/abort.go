package acquisition

import (
	"fx2lafw/internal/driver/device"
	"fx2lafw/internal/driver/transport"
)

// Abort implements spec.md §4.4.2's abort(): idempotent (num_samples
// == -1 short-circuits every subsequent completion to "free and
// return"), cancels every outstanding transfer, and lets the END
// packet fire exactly once from the last freeTransfer call once every
// slot has drained.
func Abort(usb transport.USB, dc *device.Context) {
	if dc.NumSamples == -1 {
		return
	}
	dc.NumSamples = -1
	dc.Substate = device.SubstateStop
	dc.Logf("acquisition: aborting, cancelling %d in-flight transfers", len(dc.Transfers))
	for _, t := range dc.Transfers {
		usb.BulkCancel(t.Handle)
	}
}
