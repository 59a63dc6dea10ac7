package device

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"fx2lafw/internal/driver/firmware"
	"fx2lafw/internal/driver/fx2err"
	"fx2lafw/internal/driver/transport"
)

// ScanOptions carries the input options of spec.md §4.2.
type ScanOptions struct {
	// ConnFilter restricts Scan to one device, formatted "bus.address".
	// Empty means no filter.
	ConnFilter string
	// Mode is the DSLogic operating-mode name ("Logic Analyzer",
	// "Oscilloscope", "Data Acquisition"); ignored for non-DSLogic
	// profiles. Empty defaults to logic-analyzer mode.
	Mode string
}

func parseConnFilter(s string) (bus, addr uint8, ok bool, err error) {
	if s == "" {
		return 0, 0, false, nil
	}
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return 0, 0, false, fmt.Errorf("conn filter %q: expected bus.address", s)
	}
	b, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return 0, 0, false, fmt.Errorf("conn filter %q: bad bus: %w", s, err)
	}
	a, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return 0, 0, false, fmt.Errorf("conn filter %q: bad address: %w", s, err)
	}
	return uint8(b), uint8(a), true, nil
}

func hasPrefixAny(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// matchProfile walks profiles in order looking for the first entry
// whose VID/PID and (if set) required strings match, per spec.md §4.2
// step 3.
func matchProfile(profiles []Profile, vid, pid uint16, manufacturer, product string) (*Profile, bool) {
	for i := range profiles {
		p := &profiles[i]
		if p.VendorID != vid || p.ProductID != pid {
			continue
		}
		if p.RequiredManufacturer != "" && p.RequiredManufacturer != manufacturer {
			continue
		}
		if p.RequiredProduct != "" && p.RequiredProduct != product {
			continue
		}
		return p, true
	}
	return nil, false
}

// Scan implements spec.md §4.2's scan(): enumerate, match, build
// channel lists, and kick off firmware upload for devices that need
// it. uploader may be firmware.NopUploader{} when no device in the
// profile table needs firmware (e.g. DSLogic-only deployments).
func Scan(ctx context.Context, usb transport.USB, profiles []Profile, opts ScanOptions, uploader firmware.Uploader) ([]*Context, error) {
	refs, err := usb.Enumerate(ctx)
	if err != nil {
		return nil, fx2err.New(fx2err.Transport, "scan", err)
	}

	wantBus, wantAddr, filtered, err := parseConnFilter(opts.ConnFilter)
	if err != nil {
		return nil, fx2err.New(fx2err.Arg, "scan", err)
	}

	var out []*Context
	for _, ref := range refs {
		if filtered && (ref.Bus != wantBus || ref.Address != wantAddr) {
			continue
		}

		manufacturer, product, err := readIdentityStrings(ctx, usb, ref)
		if err != nil {
			continue // unreadable descriptor: not a candidate, not fatal to the scan
		}

		profile, ok := matchProfile(profiles, ref.VendorID, ref.ProductID, manufacturer, product)
		if !ok {
			continue
		}

		dc := NewContext(profile)
		dc.Bus, dc.Address = ref.Bus, ref.Address
		dc.Channels = BuildChannels(*profile, profile.IsDSLogic() && opts.Mode != "" && opts.Mode != "Logic Analyzer")
		log.Printf("device: matched %d.%d (%04x:%04x) to profile %s %s", ref.Bus, ref.Address, ref.VendorID, ref.ProductID, profile.Vendor, profile.Model)

		if hasPrefixAny(manufacturer, firmwareResidentManufacturers) && hasPrefixAny(product, firmwareResidentProducts) {
			dc.Substate = SubstateInactive
		} else {
			dc.Logf("device: uploading firmware %s to %d.%d", profile.FirmwarePath, ref.Bus, ref.Address)
			if err := uploadFirmware(ctx, usb, ref, *profile, uploader); err != nil {
				dc.Logf("device: firmware upload to %d.%d failed: %v", ref.Bus, ref.Address, err)
				return nil, err
			}
			dc.FirmwareUpdatedUsec = uint64(time.Now().UnixMicro())
			dc.Address = 0xFF // sentinel: unknown until renumeration
			dc.Substate = SubstateInactive
		}

		out = append(out, dc)
	}
	return out, nil
}

func readIdentityStrings(ctx context.Context, usb transport.USB, ref transport.DeviceRef) (manufacturer, product string, err error) {
	h, err := usb.Open(ctx, ref, 0)
	if err != nil {
		return "", "", err
	}
	defer usb.Close(h)

	if ref.ManufacturerID != 0 {
		if manufacturer, err = usb.GetStringDescriptor(ctx, h, ref.ManufacturerID); err != nil {
			return "", "", err
		}
	}
	if ref.ProductStrID != 0 {
		if product, err = usb.GetStringDescriptor(ctx, h, ref.ProductStrID); err != nil {
			return "", "", err
		}
	}
	return manufacturer, product, nil
}

func uploadFirmware(ctx context.Context, usb transport.USB, ref transport.DeviceRef, p Profile, uploader firmware.Uploader) error {
	h, err := usb.Open(ctx, ref, 0)
	if err != nil {
		return fx2err.New(fx2err.Transport, "scan.upload_firmware", err)
	}
	defer usb.Close(h)

	if err := uploader.Upload(ctx, usb, h, p.FirmwarePath); err != nil {
		return fx2err.New(fx2err.Transport, "scan.upload_firmware", err)
	}
	return nil
}
