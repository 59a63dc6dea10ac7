package device

import (
	"context"
	"time"

	"fx2lafw/internal/driver/fx2err"
	"fx2lafw/internal/driver/transport"
)

// ReqGetFWVersion is the vendor control-in request both variants
// answer with {major, minor}, per spec.md §6.1.
const ReqGetFWVersion uint8 = 0xB0

const renumerationPoll = 100 * time.Millisecond
const renumerationCeiling = 3 * time.Second

// Open implements spec.md §4.2's open lifecycle: wait for renumeration
// if firmware was just uploaded, rescan to re-locate the device, open
// and claim it through usb.Open, and verify the firmware major version
// before returning. requiredMajor is the firmware major version this
// driver targets. The interface is already claimed when the version
// check runs; on a mismatch the handle is closed again, dc.Handle is
// left unset, and Open fails with fx2err.Protocol (spec.md §8
// scenario 6).
func Open(ctx context.Context, usb transport.USB, dc *Context, requiredMajor uint8) error {
	if dc.FirmwareUpdatedUsec > 0 {
		dc.Logf("device: waiting for renumeration of %04x:%04x", dc.Profile.VendorID, dc.Profile.ProductID)
		if err := waitForRenumeration(ctx, usb, dc); err != nil {
			dc.Logf("device: renumeration wait failed: %v", err)
			return err
		}
	}

	ref, err := locate(ctx, usb, dc)
	if err != nil {
		dc.Logf("device: open.locate failed: %v", err)
		return err
	}

	h, err := usb.Open(ctx, ref, 0)
	if err != nil {
		return fx2err.New(fx2err.Transport, "open", err)
	}

	buf := make([]byte, 2)
	n, err := usb.ControlIn(ctx, h, ReqGetFWVersion, buf, transport.DefaultControlTimeout)
	if err != nil || n < 2 {
		usb.Close(h)
		dc.Logf("device: get_fw_version control request failed: %v", err)
		return fx2err.New(fx2err.Transport, "open.get_fw_version", err)
	}
	major := buf[0]
	if major != requiredMajor {
		usb.Close(h)
		dc.Logf("device: firmware major version mismatch: got %d want %d", major, requiredMajor)
		return fx2err.New(fx2err.Protocol, "open.get_fw_version",
			firmwareMismatch{got: major, want: requiredMajor})
	}

	dc.Handle = h
	dc.Bus, dc.Address = ref.Bus, ref.Address
	dc.Substate = SubstateInactive
	dc.Logf("device: opened %d.%d, substate %s", ref.Bus, ref.Address, dc.Substate)
	return nil
}

type firmwareMismatch struct{ got, want uint8 }

func (e firmwareMismatch) Error() string {
	return "firmware major version mismatch"
}

// waitForRenumeration polls Enumerate until a device matching dc's
// profile VID/PID reappears or renumerationCeiling elapses.
func waitForRenumeration(ctx context.Context, usb transport.USB, dc *Context) error {
	deadline := time.Now().Add(renumerationCeiling)
	for {
		refs, err := usb.Enumerate(ctx)
		if err != nil {
			return fx2err.New(fx2err.Transport, "open.wait_renumeration", err)
		}
		for _, ref := range refs {
			if ref.VendorID == dc.Profile.VendorID && ref.ProductID == dc.Profile.ProductID {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fx2err.New(fx2err.Transport, "open.wait_renumeration", errRenumerationTimeout{})
		}
		select {
		case <-ctx.Done():
			return fx2err.New(fx2err.Transport, "open.wait_renumeration", ctx.Err())
		case <-time.After(renumerationPoll):
		}
	}
}

type errRenumerationTimeout struct{}

func (errRenumerationTimeout) Error() string { return "device did not renumerate in time" }

// locate re-finds the candidate device: by (bus, address) if known, by
// (VID, PID) index order otherwise.
func locate(ctx context.Context, usb transport.USB, dc *Context) (transport.DeviceRef, error) {
	refs, err := usb.Enumerate(ctx)
	if err != nil {
		return transport.DeviceRef{}, fx2err.New(fx2err.Transport, "open.locate", err)
	}
	if dc.Address != 0xFF {
		for _, ref := range refs {
			if ref.Bus == dc.Bus && ref.Address == dc.Address {
				return ref, nil
			}
		}
	}
	for _, ref := range refs {
		if ref.VendorID == dc.Profile.VendorID && ref.ProductID == dc.Profile.ProductID {
			return ref, nil
		}
	}
	return transport.DeviceRef{}, fx2err.New(fx2err.Transport, "open.locate", errDeviceNotFound{})
}

type errDeviceNotFound struct{}

func (errDeviceNotFound) Error() string { return "device not found on rescan" }
