package acquisition

import (
	"context"
	"fmt"

	"fx2lafw/internal/driver/device"
	"fx2lafw/internal/driver/fx2err"
	"fx2lafw/internal/driver/packet"
	"fx2lafw/internal/driver/transport"
)

// ConfigureChannels implements spec.md §4.4.1 step 1: derive
// sample-wide from the enabled channel set and program the software
// trigger mask/value arrays from each enabled channel's trigger
// string, one stage per character.
func ConfigureChannels(dc *device.Context) error {
	dc.SampleWide = false
	dc.TriggerMask = [device.NumTriggerStages]uint16{}
	dc.TriggerValue = [device.NumTriggerStages]uint16{}

	anyTrigger := false
	for _, ch := range dc.Channels {
		if !ch.Enabled {
			continue
		}
		if ch.Index > 7 {
			dc.SampleWide = true
		}
		if ch.Trigger == "" {
			continue
		}
		if len(ch.Trigger) > device.NumTriggerStages {
			return fx2err.New(fx2err.Arg, "configure_channels",
				fmt.Errorf("trigger string %q longer than %d stages", ch.Trigger, device.NumTriggerStages))
		}
		anyTrigger = true
		for stage, c := range ch.Trigger {
			dc.TriggerMask[stage] |= 1 << uint(ch.Index)
			if c == '1' {
				dc.TriggerValue[stage] |= 1 << uint(ch.Index)
			}
		}
	}

	if !anyTrigger {
		dc.TriggerStage = device.TriggerFired
	} else {
		dc.TriggerStage = 0
	}
	return nil
}

func sampleWidth(wide bool) int {
	if wide {
		return 2
	}
	return 1
}

// StartBase implements spec.md §4.4.1's non-DSLogic start(): configure
// channels, solve the samplerate, pre-allocate and submit the transfer
// pool, send CMD_START, and emit the session header.
func StartBase(ctx context.Context, usb transport.USB, dc *device.Context, consumer packet.Consumer) error {
	if err := ConfigureChannels(dc); err != nil {
		return err
	}
	dc.Consumer = consumer

	width := sampleWidth(dc.SampleWide)
	delay, clk, err := SolveSamplerate(dc.SampleRate, dc.SampleWide)
	if err != nil {
		return err
	}

	bufSize := bufferSize(dc.SampleRate, width)
	n := numTransfers(dc.SampleRate, width, bufSize)

	dc.NumSamples = 0
	dc.Transfers = make([]*device.Transfer, 0, n)
	dc.TransfersSubmitted = 0
	dc.EmptyTransferCount = 0

	for i := 0; i < n; i++ {
		if err := submitTransfer(usb, dc, EndpointBaseDataIn, int(bufSize), width, false); err != nil {
			return err
		}
	}

	startPayload := []byte{startFlags(dc.SampleWide, clk), byte(delay >> 8), byte(delay)}
	if err := usb.ControlOut(ctx, dc.Handle, ReqStartBase, startPayload, transport.ExtendedControlTimeout); err != nil {
		dc.Logf("acquisition: cmd_start control request failed: %v", err)
		return fx2err.New(fx2err.Transport, "start.cmd_start", err)
	}

	dc.Substate = 0 // base variant has no §4.4.2 substates; left at zero value
	dc.Logf("acquisition: started base acquisition, rate=%d wide=%v transfers=%d", dc.SampleRate, dc.SampleWide, n)
	consumer(packet.NewHeader())
	return nil
}

// submitTransfer allocates a buffer and queues one bulk-in transfer,
// wiring its completion to HandleCompletion.
func submitTransfer(usb transport.USB, dc *device.Context, ep uint8, size, width int, analog bool) error {
	buf := make([]byte, size)
	t := &device.Transfer{Buffer: buf}
	h, err := usb.BulkSubmit(dc.Handle, ep, buf, func(c transport.Completion) {
		HandleCompletion(usb, dc, t, c, width, analog)
	})
	if err != nil {
		dc.Logf("acquisition: transfer submission on endpoint %#x failed: %v", ep, err)
		return fx2err.New(fx2err.Transport, "submit_transfer", err)
	}
	t.Handle = h
	dc.Transfers = append(dc.Transfers, t)
	dc.TransfersSubmitted++
	return nil
}
