package acquisition

import (
	"encoding/binary"

	"fx2lafw/internal/driver/device"
	"fx2lafw/internal/driver/dslogic"
	"fx2lafw/internal/driver/packet"
	"fx2lafw/internal/driver/transport"
)

// HandleCompletion is the bulk-in completion callback wired by
// submitTransfer, implementing spec.md §4.4.1's completion handler and
// software trigger.
func HandleCompletion(usb transport.USB, dc *device.Context, t *device.Transfer, c transport.Completion, width int, analog bool) {
	if dc.NumSamples < 0 {
		freeTransfer(usb, dc, t)
		return
	}

	if c.Status == transport.StatusNoDevice {
		dc.Logf("acquisition: device disappeared mid-transfer, aborting")
		Abort(usb, dc)
		freeTransfer(usb, dc, t)
		return
	}

	packetHasError := c.Status != transport.StatusCompleted && c.Status != transport.StatusTimedOut
	if packetHasError || len(c.Data) == 0 {
		dc.EmptyTransferCount++
		if dc.EmptyTransferCount > MaxEmptyTransfers {
			dc.Logf("acquisition: exceeded %d empty/errored transfers, aborting", MaxEmptyTransfers)
			Abort(usb, dc)
			freeTransfer(usb, dc, t)
			return
		}
	} else {
		dc.EmptyTransferCount = 0
	}

	checkTestMode(dc, c.Data, width)

	done := processData(dc, c.Data, width, analog)
	if done {
		dc.Logf("acquisition: sample limit %d reached, stopping", dc.LimitSamples)
		Abort(usb, dc)
		freeTransfer(usb, dc, t)
		return
	}

	resubmitTransfer(usb, dc, t, width, analog)
}

func resubmitTransfer(usb transport.USB, dc *device.Context, t *device.Transfer, width int, analog bool) {
	ep := EndpointBaseDataIn
	if dc.Profile != nil && dc.Profile.IsDSLogic() {
		ep = EndpointDSLogicDataIn
	}
	h, err := usb.BulkSubmit(dc.Handle, ep, t.Buffer, func(c transport.Completion) {
		HandleCompletion(usb, dc, t, c, width, analog)
	})
	if err != nil {
		// Transport refused to resubmit: treat like NO_DEVICE.
		Abort(usb, dc)
		freeTransfer(usb, dc, t)
		return
	}
	t.Handle = h
}

func freeTransfer(usb transport.USB, dc *device.Context, t *device.Transfer) {
	idx := -1
	for i, x := range dc.Transfers {
		if x == t {
			idx = i
			break
		}
	}
	if idx >= 0 {
		dc.Transfers = append(dc.Transfers[:idx], dc.Transfers[idx+1:]...)
	}
	dc.TransfersSubmitted--
	if dc.TransfersSubmitted <= 0 && dc.Consumer != nil {
		dc.Consumer(packet.NewEnd())
		dc.Consumer = nil
	}
}

// processData implements the software trigger and packet-chopping
// logic of spec.md §4.4.1, returning true when the acquisition has hit
// its sample limit and should be aborted.
func processData(dc *device.Context, data []byte, width int, analog bool) bool {
	if len(data) == 0 {
		return false
	}

	samples := data
	if dc.TriggerStage >= 0 {
		fired, tailStart := matchTrigger(dc, samples, width)
		if !fired {
			return false
		}
		dc.Logf("acquisition: software trigger fired at sample %d", dc.NumSamples)
		dc.Consumer(packet.NewTrigger(nil))
		if len(dc.PreTrigger) > 0 {
			captured := append([]byte(nil), dc.PreTrigger...)
			dc.Consumer(packet.NewLogic(captured, width))
			dc.NumSamples += int64(len(captured) / width)
			dc.PreTrigger = dc.PreTrigger[:0]
		}
		samples = samples[tailStart:]
	}

	if len(samples) == 0 {
		return false
	}

	if dc.LimitSamples > 0 {
		remaining := int64(dc.LimitSamples) - dc.NumSamples
		if remaining <= 0 {
			return true
		}
		maxBytes := remaining * int64(width)
		if int64(len(samples)) > maxBytes {
			samples = samples[:maxBytes]
		}
	}

	emitData(dc, samples, width, analog)
	dc.NumSamples += int64(len(samples) / width)

	return dc.LimitSamples > 0 && dc.NumSamples >= int64(dc.LimitSamples)
}

func emitData(dc *device.Context, samples []byte, width int, analog bool) {
	if analog {
		dc.Consumer(packet.NewAnalog(samples, len(samples)/width, 0, 0))
		return
	}
	dc.Consumer(packet.NewLogic(samples, width))
}

// matchTrigger scans samples in arrival order against the current
// trigger stage, capturing matched samples into dc.PreTrigger and
// rolling back on mismatch so that an overlapping suffix (e.g. pattern
// "0001" against stream "00001") still fires, per spec.md §4.4.1.
// tailStart is the byte offset of the first unconsumed sample once
// fired.
func matchTrigger(dc *device.Context, samples []byte, width int) (fired bool, tailStart int) {
	n := len(samples) / width
	i := 0
	for i < n {
		s := sampleAt(samples, i, width)
		stage := dc.TriggerStage
		if s&dc.TriggerMask[stage] == dc.TriggerValue[stage] {
			dc.PreTrigger = append(dc.PreTrigger, samples[i*width:(i+1)*width]...)
			stage++
			nextMaskZero := stage >= device.NumTriggerStages || dc.TriggerMask[stage] == 0
			dc.TriggerStage = stage
			if nextMaskZero {
				dc.TriggerStage = device.TriggerFired
				return true, (i + 1) * width
			}
			i++
		} else {
			i -= dc.TriggerStage
			if i < -1 {
				i = -1
			}
			dc.TriggerStage = 0
			dc.PreTrigger = dc.PreTrigger[:0]
			i++
		}
	}
	return false, 0
}

// checkTestMode implements spec.md §4.5's self-test validation: when
// dc.DSLogicTest is INTERNAL or EXTERNAL, the received 16-bit samples
// must form an arithmetic progression modulo dslogic.TestModeModulus,
// seeded once from the first observed value and advanced deterministically
// thereafter, independent of mismatches. Mismatches are logged; in
// EXTERNAL mode the first mismatch ends the check for the rest of this
// transfer (the running counter still advances so the next transfer's
// check stays aligned).
func checkTestMode(dc *device.Context, data []byte, width int) {
	if dc.DSLogicTest == dslogic.TestNone || width != 2 || len(data) < 2 {
		return
	}
	samples := make([]uint16, len(data)/2)
	for i := range samples {
		samples[i] = binary.LittleEndian.Uint16(data[i*2 : i*2+2])
	}

	if !dc.TestSeeded {
		dc.TestNextExpected = samples[0]
		dc.TestSeeded = true
	}

	expect := dc.TestNextExpected
	offset := 0
	for offset < len(samples) {
		idx := dslogic.CheckTestSamples(samples[offset:], expect)
		if idx == -1 {
			break
		}
		dc.Logf("acquisition: dslogic test-mode sample mismatch at sample %d", dc.NumSamples+int64(offset+idx))
		if dc.DSLogicTest == dslogic.TestExternal {
			break
		}
		offset += idx + 1
		expect = wrapAdd(expect, idx+1)
	}
	dc.TestNextExpected = wrapAdd(dc.TestNextExpected, len(samples))
}

func wrapAdd(v uint16, n int) uint16 {
	return uint16((int(v) + n) % dslogic.TestModeModulus)
}

func sampleAt(data []byte, i, width int) uint16 {
	if width == 1 {
		return uint16(data[i])
	}
	return binary.LittleEndian.Uint16(data[i*2 : i*2+2])
}
