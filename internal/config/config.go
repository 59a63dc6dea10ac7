// Package config implements the keyed configuration surface of
// spec.md §6.4: scan-time options (CONN, DEVICE_MODE) and per-device
// options (SAMPLERATE, LIMIT_SAMPLES, EXTERNAL_CLOCK, TEST_MODE),
// arriving as tagged variants, plus the listable sets config_list
// returns.
//
// The .env-then-environment-variable override chain is kept from
// internal/config's original device-IP reader (a hand-rolled parser,
// no dotenv library anywhere in the retrieved pack to adopt instead);
// only the key set and the value shapes changed for this domain.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Key identifies one configuration item, per spec.md §6.4.
type Key string

const (
	KeyConn         Key = "CONN"
	KeyDeviceMode   Key = "DEVICE_MODE"
	KeySamplerate   Key = "SAMPLERATE"
	KeyLimitSamples Key = "LIMIT_SAMPLES"
	KeyExternalClock Key = "EXTERNAL_CLOCK"
	KeyTestMode     Key = "TEST_MODE"
)

// ValueKind tags which field of Value is populated.
type ValueKind int

const (
	KindUint64 ValueKind = iota
	KindInt32
	KindString
	KindBool
	KindPair
)

// Value is the tagged variant spec.md §6.4 specifies for configuration
// items. Only the field matching Kind is meaningful.
type Value struct {
	Kind ValueKind
	U64  uint64
	I32  int32
	Str  string
	Bool bool
	Pair [2]uint64
}

func Uint64Value(v uint64) Value   { return Value{Kind: KindUint64, U64: v} }
func Int32Value(v int32) Value     { return Value{Kind: KindInt32, I32: v} }
func StringValue(v string) Value   { return Value{Kind: KindString, Str: v} }
func BoolValue(v bool) Value       { return Value{Kind: KindBool, Bool: v} }
func PairValue(a, b uint64) Value  { return Value{Kind: KindPair, Pair: [2]uint64{a, b}} }

// Set is a parsed collection of configuration values keyed by Key,
// the unit Load/env parsing and ParseScanOptions/ApplyDeviceOptions
// operate on.
type Set map[Key]Value

// Load reads an optional .env file (found by walking up from the
// working directory, the same lookup internal/config's device-IP
// reader used) and then lets real environment variables with the
// prefix FX2LAFW_ override it. Recognised keys are listed in
// ListScanOptions/ListDeviceOptions; unrecognised FX2LAFW_* variables
// are ignored.
func Load() Set {
	set := Set{}

	projectRoot := findProjectRoot()
	if data, err := os.ReadFile(filepath.Join(projectRoot, ".env")); err == nil {
		parseEnvInto(set, string(data))
	}

	for _, key := range append(append([]Key{}, ListScanOptions()...), ListDeviceOptions()...) {
		if v, ok := os.LookupEnv("FX2LAFW_" + string(key)); ok {
			set[key] = StringValue(v)
		}
	}
	return set
}

func parseEnvInto(set Set, content string) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := Key(strings.TrimPrefix(strings.TrimSpace(parts[0]), "FX2LAFW_"))
		set[key] = StringValue(strings.TrimSpace(parts[1]))
	}
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}
