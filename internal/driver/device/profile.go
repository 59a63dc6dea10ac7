// Package device implements spec.md §4.2's bus scan and profile match,
// and owns the per-device mutable state of spec.md §3's Device Context
// (named Context here; "Device Context" would shadow context.Context).
//
// The struct layout style (exported field groups, a capability bitset
// constant block) is grounded on
// guiperry-HASHER/internal/driver/device/controller.go's Device struct
// and its USBVendorID/USBProductID/token constant blocks; the scan
// algorithm itself is grounded on
// google-periph/experimental/host/usbbus/usbbus.go's enumerate-then-match
// loop.
package device

// Capability is a bitset of optional device features, per spec.md §3.
type Capability uint32

const (
	// Wide16Bit means the device samples 16 logic channels rather than 8.
	Wide16Bit Capability = 1 << iota
	// IsDSLogic means the device is the DreamSourceLab FPGA-augmented
	// variant and requires the two-phase acquisition path of spec.md
	// §4.4.2 rather than the base single-phase path.
	IsDSLogic
)

// Profile is a static record describing one supported device model,
// per spec.md §3. Table order is significant: Scan's first matching
// entry wins.
type Profile struct {
	VendorID, ProductID uint16

	Vendor       string
	Model        string
	ModelVersion string

	FirmwarePath string

	Capabilities Capability

	// RequiredManufacturer/RequiredProduct, when non-empty, must equal
	// the device's own USB string descriptors for this profile to
	// match (spec.md §4.2 step 3).
	RequiredManufacturer string
	RequiredProduct      string

	// Samplerates is this model's listable samplerate table (spec.md
	// §6.4), in Hz, ascending.
	Samplerates []uint64
}

func (p Profile) Wide16Bit() bool  { return p.Capabilities&Wide16Bit != 0 }
func (p Profile) IsDSLogic() bool  { return p.Capabilities&IsDSLogic != 0 }

// baseSamplerates and dslogicSamplerates are the two fixed tables of
// spec.md §6.4, modeled as data per SPEC_FULL.md D.4.
var baseSamplerates = []uint64{
	20_000, 25_000, 50_000, 100_000, 200_000, 250_000, 500_000,
	1_000_000, 2_000_000, 3_000_000, 4_000_000, 6_000_000, 8_000_000,
	12_000_000, 16_000_000, 24_000_000,
}

var dslogicSamplerates = []uint64{
	10_000, 20_000, 50_000, 100_000, 200_000, 500_000,
	1_000_000, 2_000_000, 5_000_000, 10_000_000, 20_000_000, 25_000_000,
	50_000_000, 100_000_000, 200_000_000, 400_000_000,
}

// DefaultProfiles is the compiled-in profile table. internal/config's
// LoadProfileOverrides may patch firmware paths / required strings on
// a copy of this table before Scan walks it.
// DefaultProfiles lists the already-flashed variants first (strict
// string requirements, so a raw Cypress chip never matches them by
// accident) and the stock/bootloader Cypress FX2 last, with no string
// requirement at all — "first matching entry wins" (spec.md §3) is
// exactly what keeps these from colliding.
var DefaultProfiles = []Profile{
	{
		VendorID: 0x0925, ProductID: 0x3881,
		Vendor: "sigrok", Model: "fx2lafw", ModelVersion: "1",
		FirmwarePath:         "fx2lafw-cypress-fx2.fw",
		Capabilities:         0,
		RequiredManufacturer: "sigrok",
		RequiredProduct:      "fx2lafw",
		Samplerates:          baseSamplerates,
	},
	{
		VendorID: 0x0c12, ProductID: 0x0003,
		Vendor: "sigrok", Model: "fx2lafw-16", ModelVersion: "1",
		FirmwarePath:         "fx2lafw-cypress-fx2.fw",
		Capabilities:         Wide16Bit,
		RequiredManufacturer: "sigrok",
		RequiredProduct:      "fx2lafw",
		Samplerates:          baseSamplerates,
	},
	{
		VendorID: 0x2a0e, ProductID: 0x0020,
		Vendor: "DreamSourceLab", Model: "DSLogic", ModelVersion: "1",
		FirmwarePath:         "DSLogic.fw",
		Capabilities:         Wide16Bit | IsDSLogic,
		RequiredManufacturer: "DreamSourceLab",
		RequiredProduct:      "DSLogic",
		Samplerates:          dslogicSamplerates,
	},
	{
		VendorID: 0x04b4, ProductID: 0x8613,
		Vendor: "sigrok", Model: "fx2lafw", ModelVersion: "1",
		FirmwarePath: "fx2lafw-cypress-fx2.fw",
		Capabilities: 0,
		Samplerates:  baseSamplerates,
	},
}

// firmwareResidentManufacturers/Products are the fixed prefix sets
// spec.md §4.2 step 5 checks against, independent of which profile
// structurally matched — a device can match the bootloader profile by
// bare VID/PID yet already carry firmware from a previous session.
var firmwareResidentManufacturers = []string{"sigrok", "DreamSourceLab"}
var firmwareResidentProducts = []string{"fx2lafw", "DSLogic"}
