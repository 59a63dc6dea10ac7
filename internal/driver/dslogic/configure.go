package dslogic

import (
	"context"
	"time"

	"fx2lafw/internal/driver/fx2err"
	"fx2lafw/internal/driver/transport"
)

// DSLogic-side vendor request codes and bulk-out endpoint, per
// spec.md §6.1. Duplicated here (rather than imported from
// internal/driver/acquisition) because Configure is the single place
// the duplicate FPGA-configuration block from spec.md §9 collapses
// into, and acquisition already depends on this package — not the
// other way around.
const (
	reqStartDSLogic uint8 = 0xB2
	reqFPGAConfig   uint8 = 0xB3
	reqFPGASetting  uint8 = 0xB4
	endpointOut     uint8 = 0x02

	flagDSLogicStop uint8 = 1 << 7
)

const (
	configSettleDelay    = 10 * time.Millisecond
	bitstreamChunkSize   = 340604
	bitstreamChunkTimeout = 1 * time.Second
)

// sleep is a package variable so tests can stub out the 10ms settle
// delay without actually sleeping.
var sleep = time.Sleep

// Configure implements spec.md §4.4.2 steps 1-3, the single
// implementation spec.md §9 asks for in place of the source's
// duplicated configuration block: stop any prior acquisition,
// request FPGA config mode, stream the bitstream in fixed-size
// chunks, then stream the packed settings frame.
func Configure(ctx context.Context, usb transport.USB, h transport.Handle, bitstream []byte, settings Settings) error {
	stopPayload := []byte{flagDSLogicStop, 0, 0}
	if err := usb.ControlOut(ctx, h, reqStartDSLogic, stopPayload, transport.ExtendedControlTimeout); err != nil {
		return fx2err.New(fx2err.Transport, "dslogic.configure.stop", err)
	}

	if err := usb.ControlOut(ctx, h, reqFPGAConfig, nil, transport.ExtendedControlTimeout); err != nil {
		return fx2err.New(fx2err.Transport, "dslogic.configure.fpga_config", err)
	}
	sleep(configSettleDelay)

	if err := streamBitstream(usb, h, bitstream); err != nil {
		return err
	}

	frame := Build(settings)
	count := len(frame)
	countPayload := []byte{byte(count), byte(count >> 8), byte(count >> 16)}
	if err := usb.ControlOut(ctx, h, reqFPGASetting, countPayload, transport.ExtendedControlTimeout); err != nil {
		return fx2err.New(fx2err.Transport, "dslogic.configure.fpga_setting", err)
	}
	return blockingBulkOut(usb, h, endpointOut, frame, bitstreamChunkTimeout)
}

func streamBitstream(usb transport.USB, h transport.Handle, bitstream []byte) error {
	for off := 0; off < len(bitstream); off += bitstreamChunkSize {
		end := off + bitstreamChunkSize
		if end > len(bitstream) {
			end = len(bitstream)
		}
		if err := blockingBulkOut(usb, h, endpointOut, bitstream[off:end], bitstreamChunkTimeout); err != nil {
			return fx2err.New(fx2err.Protocol, "dslogic.configure.bitstream", err)
		}
	}
	return nil
}

// blockingBulkOut submits buf on ep and blocks (via repeated Poll)
// until it completes or timeout elapses. The DSLogic configuration
// sequence is inherently synchronous — each step depends on the
// previous one having actually reached the device — unlike the
// fire-and-forget data-path transfers of internal/driver/acquisition.
func blockingBulkOut(usb transport.USB, h transport.Handle, ep uint8, buf []byte, timeout time.Duration) error {
	var result transport.Completion
	done := false
	_, err := usb.BulkSubmit(h, ep, buf, func(c transport.Completion) {
		result = c
		done = true
	})
	if err != nil {
		return fx2err.New(fx2err.Transport, "dslogic.blocking_bulk_out", err)
	}

	deadline := time.Now().Add(timeout)
	for !done {
		usb.Poll(timeout)
		if !done && time.Now().After(deadline) {
			return fx2err.New(fx2err.Transport, "dslogic.blocking_bulk_out", errBulkOutTimeout{})
		}
	}
	if result.Status != transport.StatusCompleted {
		return fx2err.New(fx2err.Transport, "dslogic.blocking_bulk_out", errBulkOutFailed{result.Status})
	}
	return nil
}

type errBulkOutTimeout struct{}

func (errBulkOutTimeout) Error() string { return "bulk-out transfer did not complete in time" }

type errBulkOutFailed struct{ status transport.Status }

func (e errBulkOutFailed) Error() string { return "bulk-out transfer failed: " + e.status.String() }
