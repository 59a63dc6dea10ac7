package device_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx2lafw/internal/driver/device"
	"fx2lafw/internal/driver/firmware"
	"fx2lafw/internal/driver/fx2err"
	"fx2lafw/internal/driver/transport"
)

func TestScanMatchesFlashedProfileWithoutUpload(t *testing.T) {
	f := transport.NewFake()
	f.Devices = []transport.DeviceRef{
		{Bus: 1, Address: 2, VendorID: 0x0925, ProductID: 0x3881, ManufacturerID: 1, ProductStrID: 2},
	}
	f.Strings[1] = "sigrok"
	f.Strings[2] = "fx2lafw"

	ctxs, err := device.Scan(context.Background(), f, device.DefaultProfiles, device.ScanOptions{}, firmware.NopUploader{})
	require.NoError(t, err)
	require.Len(t, ctxs, 1)
	assert.Equal(t, device.SubstateInactive, ctxs[0].Substate)
	assert.Equal(t, uint64(0), ctxs[0].FirmwareUpdatedUsec)
	assert.Len(t, ctxs[0].Channels, 8)
}

func TestScanUploadsFirmwareForBootloaderDevice(t *testing.T) {
	f := transport.NewFake()
	f.Devices = []transport.DeviceRef{
		{Bus: 1, Address: 3, VendorID: 0x04b4, ProductID: 0x8613},
	}

	uploaded := false
	up := uploaderFunc(func(ctx context.Context, usb transport.USB, h transport.Handle, path string) error {
		uploaded = true
		assert.Equal(t, "fx2lafw-cypress-fx2.fw", path)
		return nil
	})

	ctxs, err := device.Scan(context.Background(), f, device.DefaultProfiles, device.ScanOptions{}, up)
	require.NoError(t, err)
	require.Len(t, ctxs, 1)
	assert.True(t, uploaded)
	assert.Equal(t, uint8(0xFF), ctxs[0].Address)
	assert.Greater(t, ctxs[0].FirmwareUpdatedUsec, uint64(0))
}

func TestScanHonorsConnFilter(t *testing.T) {
	f := transport.NewFake()
	f.Devices = []transport.DeviceRef{
		{Bus: 1, Address: 2, VendorID: 0x0925, ProductID: 0x3881, ManufacturerID: 1, ProductStrID: 2},
		{Bus: 1, Address: 5, VendorID: 0x0925, ProductID: 0x3881, ManufacturerID: 1, ProductStrID: 2},
	}
	f.Strings[1] = "sigrok"
	f.Strings[2] = "fx2lafw"

	ctxs, err := device.Scan(context.Background(), f, device.DefaultProfiles, device.ScanOptions{ConnFilter: "1.5"}, firmware.NopUploader{})
	require.NoError(t, err)
	require.Len(t, ctxs, 1)
	assert.Equal(t, uint8(5), ctxs[0].Address)
}

func TestOpenRejectsFirmwareMajorMismatch(t *testing.T) {
	f := transport.NewFake()
	f.Devices = []transport.DeviceRef{{Bus: 1, Address: 2, VendorID: 0x0925, ProductID: 0x3881}}
	f.ControlInResponses[device.ReqGetFWVersion] = [][]byte{{9, 0}}

	dc := device.NewContext(&device.DefaultProfiles[0])
	dc.Bus, dc.Address = 1, 2

	err := device.Open(context.Background(), f, dc, 1)
	require.Error(t, err)
	var fe *fx2err.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, fx2err.Protocol, fe.Kind)
}

func TestOpenSucceedsOnMatchingFirmware(t *testing.T) {
	f := transport.NewFake()
	f.Devices = []transport.DeviceRef{{Bus: 1, Address: 2, VendorID: 0x0925, ProductID: 0x3881}}
	f.ControlInResponses[device.ReqGetFWVersion] = [][]byte{{1, 4}}

	dc := device.NewContext(&device.DefaultProfiles[0])
	dc.Bus, dc.Address = 1, 2

	require.NoError(t, device.Open(context.Background(), f, dc, 1))
	assert.Equal(t, device.SubstateInactive, dc.Substate)
}

type uploaderFunc func(ctx context.Context, usb transport.USB, h transport.Handle, path string) error

func (f uploaderFunc) Upload(ctx context.Context, usb transport.USB, h transport.Handle, path string) error {
	return f(ctx, usb, h, path)
}
