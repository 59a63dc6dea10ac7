package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx2lafw/internal/driver/transport"
)

func TestFakeControlRoundTrip(t *testing.T) {
	f := transport.NewFake()
	h, err := f.Open(context.Background(), transport.DeviceRef{}, 0)
	require.NoError(t, err)

	f.ControlInResponses[0xB0] = [][]byte{{6, 1}}
	buf := make([]byte, 2)
	n, err := f.ControlIn(context.Background(), h, 0xB0, buf, transport.DefaultControlTimeout)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{6, 1}, buf)

	require.NoError(t, f.ControlOut(context.Background(), h, 0xB1, []byte{0x40, 0x00, 0x01}, transport.DefaultControlTimeout))
	require.Len(t, f.ControlOutLog, 1)
	assert.Equal(t, uint8(0xB1), f.ControlOutLog[0].Request)
}

func TestFakeBulkInCompletesOnPoll(t *testing.T) {
	f := transport.NewFake()
	h, _ := f.Open(context.Background(), transport.DeviceRef{}, 0)
	f.BulkInData[0x86] = [][]byte{{1, 2, 3, 4}}

	var got transport.Completion
	fired := false
	buf := make([]byte, 4)
	_, err := f.BulkSubmit(h, 0x86, buf, func(c transport.Completion) {
		got = c
		fired = true
	})
	require.NoError(t, err)
	assert.False(t, fired, "callback must not fire synchronously from BulkSubmit")

	n := f.Poll(time.Millisecond)
	assert.Equal(t, 1, n)
	assert.True(t, fired)
	assert.Equal(t, transport.StatusCompleted, got.Status)
	assert.Equal(t, []byte{1, 2, 3, 4}, got.Data)
}

func TestFakeBulkCancel(t *testing.T) {
	f := transport.NewFake()
	h, _ := f.Open(context.Background(), transport.DeviceRef{}, 0)

	var status transport.Status
	buf := make([]byte, 4)
	th, _ := f.BulkSubmit(h, 0x02, buf, func(c transport.Completion) {
		status = c.Status
	})
	require.NoError(t, f.BulkCancel(th))
	f.Poll(time.Millisecond)
	assert.Equal(t, transport.StatusCancelled, status)
}
