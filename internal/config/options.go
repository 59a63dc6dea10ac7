package config

import (
	"strconv"

	"fx2lafw/internal/driver/device"
	"fx2lafw/internal/driver/dslogic"
	"fx2lafw/internal/driver/fx2err"
)

// ListScanOptions returns the keys Scan-time configuration accepts,
// per spec.md §6.4.
func ListScanOptions() []Key {
	return []Key{KeyConn, KeyDeviceMode}
}

// ListDeviceOptions returns the keys a per-device acquisition accepts,
// per spec.md §6.4. EXTERNAL_CLOCK and TEST_MODE only take effect on
// DSLogic profiles; they are still listed here (and read by Load), and
// ApplyDeviceOptions rejects them later against the concrete profile.
func ListDeviceOptions() []Key {
	return []Key{KeySamplerate, KeyLimitSamples, KeyExternalClock, KeyTestMode}
}

// ListTestModeNames returns the TEST_MODE values config_list(SRCI_CONFIG_TEST_MODE)
// would enumerate, per spec.md §6.4's literal TEST_MODE value set.
func ListTestModeNames() []string {
	return []string{"None", "Internal Test", "External Test", "DRAM Loopback Test"}
}

// ListDeviceModeNames returns the DEVICE_MODE values config_list would
// enumerate for a DSLogic profile, per spec.md §6.2's mode field.
func ListDeviceModeNames() []string {
	return []string{"Logic Analyzer", "Oscilloscope", "Data Acquisition"}
}

// ListSamplerates returns the samplerates config_list(SRCI_CONFIG_SAMPLERATE)
// would enumerate for p, per spec.md §6.4.
func ListSamplerates(p device.Profile) []uint64 {
	return p.Samplerates
}

// ParseScanOptions builds a device.ScanOptions from a Set, per
// spec.md §6.4's CONN/DEVICE_MODE keys.
func ParseScanOptions(set Set) (device.ScanOptions, error) {
	opts := device.ScanOptions{}
	if v, ok := set[KeyConn]; ok {
		s, err := stringOf(KeyConn, v)
		if err != nil {
			return opts, err
		}
		opts.ConnFilter = s
	}
	if v, ok := set[KeyDeviceMode]; ok {
		s, err := stringOf(KeyDeviceMode, v)
		if err != nil {
			return opts, err
		}
		opts.Mode = s
	}
	return opts, nil
}

// ApplyDeviceOptions copies SAMPLERATE/LIMIT_SAMPLES/EXTERNAL_CLOCK/
// TEST_MODE out of set onto dc, validating each against dc.Profile per
// spec.md §6.4's config_set semantics (reject options a profile
// doesn't support).
func ApplyDeviceOptions(dc *device.Context, set Set) error {
	if v, ok := set[KeySamplerate]; ok {
		u, err := uint64Of(KeySamplerate, v)
		if err != nil {
			return err
		}
		dc.SampleRate = u
	}
	if v, ok := set[KeyLimitSamples]; ok {
		u, err := uint64Of(KeyLimitSamples, v)
		if err != nil {
			return err
		}
		dc.LimitSamples = u
	}
	if v, ok := set[KeyExternalClock]; ok {
		if !dc.Profile.IsDSLogic() {
			return fx2err.New(fx2err.Unavailable, "config.apply_device_options", errUnsupportedOnProfile{KeyExternalClock})
		}
		b, err := boolOf(KeyExternalClock, v)
		if err != nil {
			return err
		}
		dc.DSLogicExternalClk = b
	}
	if v, ok := set[KeyTestMode]; ok {
		if !dc.Profile.IsDSLogic() {
			return fx2err.New(fx2err.Unavailable, "config.apply_device_options", errUnsupportedOnProfile{KeyTestMode})
		}
		mode, err := testModeOf(v)
		if err != nil {
			return err
		}
		dc.DSLogicTest = mode
	}
	return nil
}

func stringOf(key Key, v Value) (string, error) {
	if v.Kind == KindString {
		return v.Str, nil
	}
	return "", fx2err.New(fx2err.Arg, "config", errWrongKind{key})
}

func uint64Of(key Key, v Value) (uint64, error) {
	switch v.Kind {
	case KindUint64:
		return v.U64, nil
	case KindString:
		n, err := strconv.ParseUint(v.Str, 10, 64)
		if err != nil {
			return 0, fx2err.New(fx2err.Arg, "config", err)
		}
		return n, nil
	default:
		return 0, fx2err.New(fx2err.Arg, "config", errWrongKind{key})
	}
}

func boolOf(key Key, v Value) (bool, error) {
	switch v.Kind {
	case KindBool:
		return v.Bool, nil
	case KindString:
		b, err := strconv.ParseBool(v.Str)
		if err != nil {
			return false, fx2err.New(fx2err.Arg, "config", err)
		}
		return b, nil
	default:
		return false, fx2err.New(fx2err.Arg, "config", errWrongKind{key})
	}
}

// testModeOf accepts the literal TEST_MODE strings spec.md §6.4 defines
// ("None", "Internal Test", "External Test", "DRAM Loopback Test").
func testModeOf(v Value) (dslogic.TestMode, error) {
	name := v.Str
	if v.Kind != KindString {
		return dslogic.TestNone, fx2err.New(fx2err.Arg, "config", errWrongKind{KeyTestMode})
	}
	switch name {
	case "None", "":
		return dslogic.TestNone, nil
	case "Internal Test":
		return dslogic.TestInternal, nil
	case "External Test":
		return dslogic.TestExternal, nil
	case "DRAM Loopback Test":
		return dslogic.TestLoopback, nil
	default:
		return dslogic.TestNone, fx2err.New(fx2err.Arg, "config", errUnknownTestMode{name})
	}
}

type errWrongKind struct{ key Key }

func (e errWrongKind) Error() string { return "config: wrong value kind for key " + string(e.key) }

type errUnknownTestMode struct{ name string }

func (e errUnknownTestMode) Error() string { return "config: unknown test mode " + e.name }

type errUnsupportedOnProfile struct{ key Key }

func (e errUnsupportedOnProfile) Error() string {
	return "config: key " + string(e.key) + " is not supported by this device profile"
}
