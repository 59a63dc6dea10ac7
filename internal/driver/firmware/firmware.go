// Package firmware defines the narrow collaborator interface scan()
// calls to load firmware onto a device that has not yet renumerated.
// Firmware upload itself is out of scope (spec.md §1); this package
// only gives scan() a seam to call through, grounded on the teacher's
// injected-Deployer pattern in cmd/driver/hasher-host/main.go.
package firmware

import (
	"context"

	"fx2lafw/internal/driver/transport"
)

// Uploader pushes the firmware image at path onto the device reachable
// through h, using usb for any control/bulk transfers it needs.
type Uploader interface {
	Upload(ctx context.Context, usb transport.USB, h transport.Handle, path string) error
}

// NopUploader satisfies Uploader for hosts where firmware is already
// resident (DSLogic units ship pre-flashed; some base-variant units are
// deployed with a separate provisioning step). Upload always fails,
// since a scan() that needs it means firmware genuinely is missing.
type NopUploader struct{}

func (NopUploader) Upload(ctx context.Context, usb transport.USB, h transport.Handle, path string) error {
	return errNotImplemented{path}
}

type errNotImplemented struct{ path string }

func (e errNotImplemented) Error() string {
	return "firmware: no uploader configured, cannot load " + e.path
}
