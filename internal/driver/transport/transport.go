// Package transport is the narrow USB capability interface the rest of
// the driver core talks to: synchronous control requests and
// asynchronous bulk transfers against a single open device handle.
//
// spec.md §9 asks for the source's function-pointer-on-a-channel-struct
// pattern ("open/source_add/blocking_read/...") to be modeled as an
// interface abstraction. USB is that interface. It has exactly one
// production implementation (LibUSB, internal/driver/transport/libusb.go,
// built on google/gousb) and one test implementation (Fake, in fake.go,
// exported so acquisition/device tests in other packages can use it).
package transport

import (
	"context"
	"time"
)

// Status is the outcome of a completed (or attempted) bulk transfer,
// per spec.md §4.1.
type Status int

const (
	StatusCompleted Status = iota
	StatusTimedOut
	StatusNoDevice
	StatusCancelled
	StatusOther
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "COMPLETED"
	case StatusTimedOut:
		return "TIMED_OUT"
	case StatusNoDevice:
		return "NO_DEVICE"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "OTHER"
	}
}

// Default and extended control-transfer timeouts, per spec.md §4.1.
const (
	DefaultControlTimeout  = 100 * time.Millisecond
	ExtendedControlTimeout = 3000 * time.Millisecond
)

// RequestDirection selects IN vs OUT for a vendor control request.
type RequestDirection int

const (
	DirOut RequestDirection = iota
	DirIn
)

// DeviceRef is a lightweight, pre-open handle to a candidate USB device
// discovered by Enumerate: enough information to match against the
// profile table without having opened (and so exclusively claimed) it.
type DeviceRef struct {
	Bus, Address   uint8
	VendorID       uint16
	ProductID      uint16
	ManufacturerID uint8 // string descriptor index, 0 = none
	ProductStrID   uint8 // string descriptor index, 0 = none
}

// Handle is an opened, interface-claimed device, ready for control and
// bulk transfers.
type Handle interface{}

// Completion is delivered to a bulk transfer's callback when it
// finishes, is cancelled, or times out.
type Completion struct {
	Status Status
	Data   []byte // the caller-owned buffer, length trimmed to ActualLength
}

// CompletionFunc is invoked by Poll, on the caller's goroutine, for
// every bulk transfer that has finished since the last Poll call.
type CompletionFunc func(Completion)

// TransferHandle identifies one in-flight bulk transfer so it can be
// cancelled via BulkCancel.
type TransferHandle uint64

// USB is the capability set the acquisition core requires from a USB
// backend. Every method that can fail returns a *fx2err.Error.
type USB interface {
	// Enumerate lists every USB device currently present on the bus.
	Enumerate(ctx context.Context) ([]DeviceRef, error)

	// Open claims exclusive access to dev and returns a Handle good for
	// control and bulk transfers. iface is the interface number to
	// claim (always 0 for this device family).
	Open(ctx context.Context, dev DeviceRef, iface int) (Handle, error)

	// Close releases h and any endpoints opened against it.
	Close(h Handle) error

	// GetStringDescriptor reads a USB string descriptor by index,
	// decoded to ASCII (non-ASCII bytes dropped), matching
	// spec.md §4.1's get_string_descriptor_ascii.
	GetStringDescriptor(ctx context.Context, h Handle, index uint8) (string, error)

	// ControlOut issues a synchronous vendor OUT control request.
	ControlOut(ctx context.Context, h Handle, request uint8, data []byte, timeout time.Duration) error

	// ControlIn issues a synchronous vendor IN control request, reading
	// up to len(buf) bytes into buf and returning the actual count.
	ControlIn(ctx context.Context, h Handle, request uint8, buf []byte, timeout time.Duration) (int, error)

	// BulkSubmit queues an asynchronous bulk transfer on endpoint ep
	// (IN if ep has the USB IN bit set, OUT otherwise) using buf as the
	// transfer's buffer, and returns immediately with a handle that
	// can be passed to BulkCancel. cb fires from Poll, never from
	// BulkSubmit itself.
	BulkSubmit(h Handle, ep uint8, buf []byte, cb CompletionFunc) (TransferHandle, error)

	// BulkCancel requests cancellation of a previously submitted
	// transfer. The transfer's callback still fires (with
	// StatusCancelled, ordinarily) from a later Poll call.
	BulkCancel(t TransferHandle) error

	// Poll drains any bulk transfers that have completed since the
	// last call and invokes their callbacks, blocking for up to
	// timeout if none are yet ready. It stands in for the "host
	// event-loop" spec.md §1 places out of scope: the driver core
	// never runs its own loop, it only ever reacts to a Poll the
	// caller drives.
	Poll(timeout time.Duration) int
}
