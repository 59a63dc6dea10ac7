package acquisition

import (
	"context"

	"fx2lafw/internal/driver/device"
	"fx2lafw/internal/driver/dslogic"
	"fx2lafw/internal/driver/packet"
	"fx2lafw/internal/driver/transport"
)

// StartDSLogic implements spec.md §4.4.2's two-phase DSLogic start:
// configure the FPGA (dslogic.Configure), submit the single
// trigger-position transfer, and emit the session header. The data
// transfer pool is submitted later, from the trigger-position
// transfer's own completion handler, once the real trigger has fired
// in hardware.
func StartDSLogic(ctx context.Context, usb transport.USB, dc *device.Context, bitstream []byte, consumer packet.Consumer) error {
	if err := ConfigureChannels(dc); err != nil {
		return err
	}
	dc.Consumer = consumer
	dc.NumSamples = 0
	dc.TransfersSubmitted = 0
	dc.EmptyTransferCount = 0
	dc.Substate = device.SubstateInit

	settings := dslogic.Settings{
		Mode:         dc.DSLogicMode,
		Test:         dc.DSLogicTest,
		ExternalTest: dc.DSLogicTest == dslogic.TestExternal,
		Loopback:     dc.DSLogicTest == dslogic.TestLoopback,
		ExternalClk:  dc.DSLogicExternalClk,
		SampleRateHz: dc.SampleRate,
		LimitSamples: uint32(dc.LimitSamples),
		Trigger:      dc.Trigger,
	}

	if err := dslogic.Configure(ctx, usb, dc.Handle, bitstream, settings); err != nil {
		dc.Logf("acquisition: dslogic FPGA configure failed: %v", err)
		dc.Substate = device.SubstateError
		Abort(usb, dc)
		return err
	}
	dc.Logf("acquisition: dslogic FPGA configured, mode=%v rate=%d", settings.Mode, settings.SampleRateHz)

	tpBuf := make([]byte, dslogic.TriggerPosReportSize)
	t := &device.Transfer{Buffer: tpBuf}
	h, err := usb.BulkSubmit(dc.Handle, EndpointDSLogicDataIn, tpBuf, func(c transport.Completion) {
		handleTriggerPosCompletion(usb, dc, t, c, settings)
	})
	if err != nil {
		dc.Substate = device.SubstateError
		Abort(usb, dc)
		return err
	}
	t.Handle = h
	dc.Transfers = []*device.Transfer{t}
	dc.TransfersSubmitted = 1
	dc.Substate = device.SubstateStart

	consumer(packet.NewHeader())
	return nil
}

// handleTriggerPosCompletion implements spec.md §4.4.2 step 5: on
// success, forward the trigger-position payload as a TRIGGER packet,
// move to TRIGGERED, and submit the DSLogic data transfer pool.
func handleTriggerPosCompletion(usb transport.USB, dc *device.Context, t *device.Transfer, c transport.Completion, settings dslogic.Settings) {
	if dc.NumSamples < 0 {
		freeTransfer(usb, dc, t)
		return
	}
	if c.Status != transport.StatusCompleted {
		dc.Logf("acquisition: dslogic trigger-position transfer failed: status=%v", c.Status)
		dc.Substate = device.SubstateError
		Abort(usb, dc)
		freeTransfer(usb, dc, t)
		return
	}

	dc.Logf("acquisition: dslogic hardware trigger fired")
	dc.Consumer(packet.NewTrigger(append([]byte(nil), c.Data...)))
	dc.Substate = device.SubstateTriggered

	// The trigger-position slot is freed only after the data pool is
	// queued, so the in-flight count never reaches zero (and END is not
	// emitted) in between.
	size, analog := dslogicDataTransferSize(settings, dc)
	width := sampleWidth(dc.SampleWide)
	for i := 0; i < NumSimulTransfers; i++ {
		if err := submitTransfer(usb, dc, EndpointDSLogicDataIn, size, width, analog); err != nil {
			dc.Substate = device.SubstateError
			Abort(usb, dc)
			freeTransfer(usb, dc, t)
			return
		}
	}
	freeTransfer(usb, dc, t)
	dc.Substate = device.SubstateData
	dc.Logf("acquisition: dslogic data transfers submitted, substate %s", dc.Substate)
}

// dslogicDataTransferSize implements spec.md §4.4.2 step 5's
// per-mode buffer sizing: fixed sizes for ANALOG/DSO, the standard
// formula otherwise.
func dslogicDataTransferSize(settings dslogic.Settings, dc *device.Context) (size int, analog bool) {
	switch settings.Mode {
	case dslogic.ModeAnalog:
		return 128, true
	case dslogic.ModeDSO:
		return 16384, false
	default:
		width := sampleWidth(dc.SampleWide)
		return int(bufferSize(dc.SampleRate, width)), false
	}
}
