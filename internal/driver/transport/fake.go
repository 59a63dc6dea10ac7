package transport

import (
	"context"
	"sync"
	"time"
)

// Fake is a hand-written transport.USB test double driving the
// acquisition state machine without real hardware. See SPEC_FULL.md
// A.4/D.1 for why this is a fake rather than a generated mock: nothing
// in the retrieved pack demonstrates go.uber.org/mock conventions to
// ground a generated one on.
type Fake struct {
	mu sync.Mutex

	Devices []DeviceRef
	Strings map[uint8]string // string descriptor index -> value

	// ControlOutLog records every ControlOut request byte and payload,
	// in call order, for assertions.
	ControlOutLog []FakeControlCall
	// ControlInResponses is consumed in order by each ControlIn call
	// for the matching request code; if empty, ControlIn returns zeros.
	ControlInResponses map[uint8][][]byte

	// BulkInData feeds BulkSubmit on IN endpoints: each call pops the
	// next []byte queued for that endpoint and copies as much as fits
	// into the transfer's buffer, reporting StatusCompleted. With an
	// empty queue an IN transfer completes with zero length, so
	// acquisitions can be torn down deterministically in tests without
	// the queue running dry mid-test. OUT transfers do not use this map:
	// each is recorded in BulkOutLog and completes on the next Poll.
	BulkInData map[uint8][][]byte
	BulkOutLog map[uint8][][]byte

	nextTransfer TransferHandle
	cancelled    map[TransferHandle]bool
	pending      []pendingCompletion
}

type FakeControlCall struct {
	Request uint8
	Dir     RequestDirection
	Data    []byte
}

type pendingCompletion struct {
	handle TransferHandle
	ep     uint8
	buf    []byte
	cb     CompletionFunc
}

type fakeHandle struct{}

// NewFake returns a ready-to-use Fake transport.
func NewFake() *Fake {
	return &Fake{
		Strings:            map[uint8]string{},
		ControlInResponses: map[uint8][][]byte{},
		BulkInData:         map[uint8][][]byte{},
		BulkOutLog:         map[uint8][][]byte{},
		cancelled:          map[TransferHandle]bool{},
	}
}

func (f *Fake) Enumerate(ctx context.Context) ([]DeviceRef, error) {
	return f.Devices, nil
}

func (f *Fake) Open(ctx context.Context, dev DeviceRef, iface int) (Handle, error) {
	return fakeHandle{}, nil
}

func (f *Fake) Close(h Handle) error { return nil }

func (f *Fake) GetStringDescriptor(ctx context.Context, h Handle, index uint8) (string, error) {
	return f.Strings[index], nil
}

func (f *Fake) ControlOut(ctx context.Context, h Handle, request uint8, data []byte, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), data...)
	f.ControlOutLog = append(f.ControlOutLog, FakeControlCall{Request: request, Dir: DirOut, Data: cp})
	return nil
}

func (f *Fake) ControlIn(ctx context.Context, h Handle, request uint8, buf []byte, timeout time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	queue := f.ControlInResponses[request]
	if len(queue) == 0 {
		return 0, nil
	}
	resp := queue[0]
	f.ControlInResponses[request] = queue[1:]
	n := copy(buf, resp)
	return n, nil
}

// BulkSubmit resolves immediately against queued fixture data; it does
// not spawn a goroutine because the fake has no real I/O to block on.
// Callers must still call Poll to receive the completion, matching the
// real transport's contract that callbacks never fire synchronously
// from BulkSubmit.
func (f *Fake) BulkSubmit(h Handle, ep uint8, buf []byte, cb CompletionFunc) (TransferHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTransfer++
	handle := f.nextTransfer

	isIn := ep&0x80 != 0
	if !isIn {
		f.BulkOutLog[ep] = append(f.BulkOutLog[ep], append([]byte(nil), buf...))
		f.pending = append(f.pending, pendingCompletion{handle: handle, ep: ep, buf: buf[:0], cb: cb})
		return handle, nil
	}

	queue := f.BulkInData[ep]
	var n int
	if len(queue) > 0 {
		n = copy(buf, queue[0])
		f.BulkInData[ep] = queue[1:]
	}
	f.pending = append(f.pending, pendingCompletion{handle: handle, ep: ep, buf: buf[:n], cb: cb})
	return handle, nil
}

func (f *Fake) BulkCancel(t TransferHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled[t] = true
	return nil
}

// Poll delivers every pending completion queued by BulkSubmit since
// the last Poll call, honoring cancellations recorded by BulkCancel.
func (f *Fake) Poll(timeout time.Duration) int {
	f.mu.Lock()
	batch := f.pending
	f.pending = nil
	cancelled := f.cancelled
	f.cancelled = map[TransferHandle]bool{}
	f.mu.Unlock()

	n := 0
	for _, p := range batch {
		status := StatusCompleted
		if cancelled[p.handle] {
			status = StatusCancelled
		}
		p.cb(Completion{Status: status, Data: p.buf})
		n++
	}
	return n
}

var _ USB = (*Fake)(nil)
