package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/gousb"

	"fx2lafw/internal/driver/fx2err"
)

// bmRequestType bytes for a vendor request with wValue=0, wIndex=0,
// per spec.md §6.1.
const (
	requestTypeVendorOut = uint8(gousb.ControlOut | gousb.ControlVendor | gousb.ControlDevice)
	requestTypeVendorIn  = uint8(gousb.ControlIn | gousb.ControlVendor | gousb.ControlDevice)
)

// LibUSB is the production transport.USB, backed by google/gousb. The
// open-sequence and error-wrapping style are grounded on
// guiperry-HASHER's OpenUSBDevice (ctx -> OpenDeviceWithVIDPID ->
// Config -> Interface -> endpoints, unwinding on each failure) and on
// the google/gousb call conventions observed in
// nasa-jpl-golaborate/usbtmc (DefaultInterface, InEndpoint/OutEndpoint)
// and aljumi/ztex (Control, OpenDeviceWithVIDPID).
type LibUSB struct {
	ctx *gousb.Context
	log *log.Logger

	mu       sync.Mutex
	nextID   TransferHandle
	cancels  map[TransferHandle]context.CancelFunc
	completed chan completionMsg
}

type completionMsg struct {
	id TransferHandle
	c  Completion
	cb CompletionFunc
}

// NewLibUSB creates a transport bound to a fresh gousb context. logger
// may be nil, in which case log.Default() is used, matching the
// teacher's bare log.Printf calls.
func NewLibUSB(logger *log.Logger) *LibUSB {
	if logger == nil {
		logger = log.Default()
	}
	return &LibUSB{
		ctx:       gousb.NewContext(),
		log:       logger,
		cancels:   make(map[TransferHandle]context.CancelFunc),
		completed: make(chan completionMsg, 64),
	}
}

// CloseContext releases the underlying libusb context. Call once, after
// every Handle opened against this transport has been closed.
func (l *LibUSB) CloseContext() error {
	return l.ctx.Close()
}

type libusbHandle struct {
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	mu  sync.Mutex
	in  map[uint8]*gousb.InEndpoint
	out map[uint8]*gousb.OutEndpoint
}

func (l *LibUSB) Enumerate(ctx context.Context) ([]DeviceRef, error) {
	var refs []DeviceRef
	devs, err := l.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		refs = append(refs, DeviceRef{
			Bus:       uint8(desc.Bus),
			Address:   uint8(desc.Address),
			VendorID:  uint16(desc.Vendor),
			ProductID: uint16(desc.Product),
		})
		// We only need descriptors here, not open handles; returning
		// false leaves every candidate device closed again immediately.
		return false
	})
	for _, d := range devs {
		_ = d.Close()
	}
	if err != nil {
		return nil, fx2err.New(fx2err.Transport, "Enumerate", err)
	}
	return refs, nil
}

func (l *LibUSB) Open(ctx context.Context, ref DeviceRef, iface int) (Handle, error) {
	devs, err := l.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint8(desc.Bus) == ref.Bus && uint8(desc.Address) == ref.Address &&
			uint16(desc.Vendor) == ref.VendorID && uint16(desc.Product) == ref.ProductID
	})
	if err != nil {
		return nil, fx2err.New(fx2err.Transport, "Open", err)
	}
	if len(devs) == 0 {
		return nil, fx2err.New(fx2err.Transport, "Open", fmt.Errorf("no device at %d.%d matching %04x:%04x", ref.Bus, ref.Address, ref.VendorID, ref.ProductID))
	}
	dev := devs[0]
	for _, extra := range devs[1:] {
		_ = extra.Close()
	}

	_ = dev.SetAutoDetach(true)

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		return nil, fx2err.New(fx2err.Transport, "Open.Config", err)
	}
	intf, err := cfg.Interface(iface, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		return nil, fx2err.New(fx2err.Transport, "Open.Interface", err)
	}

	l.log.Printf("transport: opened %d.%d (%04x:%04x)", ref.Bus, ref.Address, ref.VendorID, ref.ProductID)
	return &libusbHandle{
		dev:  dev,
		cfg:  cfg,
		intf: intf,
		in:   make(map[uint8]*gousb.InEndpoint),
		out:  make(map[uint8]*gousb.OutEndpoint),
	}, nil
}

func (l *LibUSB) Close(h Handle) error {
	lh, ok := h.(*libusbHandle)
	if !ok {
		return fx2err.New(fx2err.Arg, "Close", fmt.Errorf("not a libusb handle"))
	}
	lh.intf.Close()
	lh.cfg.Close()
	lh.dev.Close()
	return nil
}

func (l *LibUSB) GetStringDescriptor(ctx context.Context, h Handle, index uint8) (string, error) {
	lh, ok := h.(*libusbHandle)
	if !ok || index == 0 {
		return "", nil
	}
	s, err := lh.dev.GetStringDescriptor(int(index))
	if err != nil {
		return "", fx2err.New(fx2err.Transport, "GetStringDescriptor", err)
	}
	return s, nil
}

func (l *LibUSB) ControlOut(ctx context.Context, h Handle, request uint8, data []byte, timeout time.Duration) error {
	lh, ok := h.(*libusbHandle)
	if !ok {
		return fx2err.New(fx2err.Arg, "ControlOut", fmt.Errorf("not a libusb handle"))
	}
	lh.dev.ControlTimeout = timeout
	_, err := lh.dev.Control(requestTypeVendorOut, request, 0, 0, data)
	if err != nil {
		l.log.Printf("transport: control-out request %#x failed: %v", request, err)
		return fx2err.New(fx2err.Transport, "ControlOut", err)
	}
	return nil
}

func (l *LibUSB) ControlIn(ctx context.Context, h Handle, request uint8, buf []byte, timeout time.Duration) (int, error) {
	lh, ok := h.(*libusbHandle)
	if !ok {
		return 0, fx2err.New(fx2err.Arg, "ControlIn", fmt.Errorf("not a libusb handle"))
	}
	lh.dev.ControlTimeout = timeout
	n, err := lh.dev.Control(requestTypeVendorIn, request, 0, 0, buf)
	if err != nil {
		l.log.Printf("transport: control-in request %#x failed: %v", request, err)
		return 0, fx2err.New(fx2err.Transport, "ControlIn", err)
	}
	return n, nil
}

func (lh *libusbHandle) inEndpoint(addr uint8) (*gousb.InEndpoint, error) {
	lh.mu.Lock()
	defer lh.mu.Unlock()
	if ep, ok := lh.in[addr]; ok {
		return ep, nil
	}
	ep, err := lh.intf.InEndpoint(int(addr & 0x7f))
	if err != nil {
		return nil, err
	}
	lh.in[addr] = ep
	return ep, nil
}

func (lh *libusbHandle) outEndpoint(addr uint8) (*gousb.OutEndpoint, error) {
	lh.mu.Lock()
	defer lh.mu.Unlock()
	if ep, ok := lh.out[addr]; ok {
		return ep, nil
	}
	ep, err := lh.intf.OutEndpoint(int(addr))
	if err != nil {
		return nil, err
	}
	lh.out[addr] = ep
	return ep, nil
}

// BulkSubmit queues a single-shot bulk transfer on a fresh goroutine,
// reconstructing libusb's async submit/callback model on top of
// gousb's synchronous, context-cancellable ReadContext/WriteContext.
// The completion callback is invoked from Poll, never from this
// goroutine, preserving spec.md §5's single-threaded-cooperative
// invariant: the driver itself never calls back into caller state
// concurrently with anything else.
func (l *LibUSB) BulkSubmit(h Handle, ep uint8, buf []byte, cb CompletionFunc) (TransferHandle, error) {
	lh, ok := h.(*libusbHandle)
	if !ok {
		return 0, fx2err.New(fx2err.Arg, "BulkSubmit", fmt.Errorf("not a libusb handle"))
	}

	l.mu.Lock()
	l.nextID++
	id := l.nextID
	tctx, cancel := context.WithCancel(context.Background())
	l.cancels[id] = cancel
	l.mu.Unlock()

	isIn := ep&0x80 != 0

	go func() {
		var n int
		var err error
		if isIn {
			var inEp *gousb.InEndpoint
			inEp, err = lh.inEndpoint(ep)
			if err == nil {
				n, err = inEp.ReadContext(tctx, buf)
			}
		} else {
			var outEp *gousb.OutEndpoint
			outEp, err = lh.outEndpoint(ep)
			if err == nil {
				n, err = outEp.WriteContext(tctx, buf)
			}
		}

		l.mu.Lock()
		delete(l.cancels, id)
		l.mu.Unlock()

		l.completed <- completionMsg{
			id: id,
			c:  Completion{Status: classify(err, tctx), Data: buf[:n]},
			cb: cb,
		}
	}()

	return id, nil
}

// classify maps a transfer error to a Status. Context cancellation/
// deadline takes priority since BulkCancel drives it deliberately;
// otherwise a gousb/libusb error code that means the device went away
// mid-transfer (unplugged, I/O failure, endpoint no longer found) maps
// to StatusNoDevice so completion.go's NO_DEVICE abort path, per
// spec.md §4.4.1, is actually reachable from the real transport.
func classify(err error, ctx context.Context) Status {
	if err == nil {
		return StatusCompleted
	}
	switch ctx.Err() {
	case context.Canceled:
		return StatusCancelled
	case context.DeadlineExceeded:
		return StatusTimedOut
	}
	var gerr gousb.Error
	if errors.As(err, &gerr) {
		switch gerr {
		case gousb.ErrorNoDevice, gousb.ErrorIO, gousb.ErrorNotFound:
			return StatusNoDevice
		}
	}
	return StatusOther
}

func (l *LibUSB) BulkCancel(t TransferHandle) error {
	l.mu.Lock()
	cancel, ok := l.cancels[t]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	cancel()
	return nil
}

// Poll drains completions posted by BulkSubmit goroutines, invoking
// each one's callback on the calling goroutine. It blocks up to
// timeout waiting for the first completion if none is already queued,
// then drains the rest of the queue without blocking.
func (l *LibUSB) Poll(timeout time.Duration) int {
	n := 0
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m := <-l.completed:
		m.cb(m.c)
		n++
	case <-timer.C:
		return 0
	}

	for {
		select {
		case m := <-l.completed:
			m.cb(m.c)
			n++
		default:
			return n
		}
	}
}

var _ USB = (*LibUSB)(nil)
