package acquisition

import (
	"fx2lafw/internal/driver/fx2err"
)

// Clock selects the base variant's 30MHz or 48MHz parent oscillator.
type Clock int

const (
	Clock30MHz Clock = iota
	Clock48MHz
)

// SolveSamplerate implements spec.md §4.4.1 step 2: try 48MHz first,
// fall back to 30MHz, reject rates above 12MHz in 16-bit-wide mode.
// It is idempotent (spec.md §8): the same rate always yields the same
// (delay, clock).
func SolveSamplerate(rate uint64, wide bool) (delay uint16, clk Clock, err error) {
	if rate == 0 {
		return 0, 0, fx2err.New(fx2err.Arg, "solve_samplerate", nil)
	}
	if wide && rate > 12_000_000 {
		return 0, 0, fx2err.New(fx2err.Protocol, "solve_samplerate", errRateTooHighFor16Bit{rate})
	}
	const mhz48 = 48_000_000
	const mhz30 = 30_000_000
	if mhz48%rate == 0 {
		d := mhz48/rate - 1
		if d <= MaxSampleDelay {
			return uint16(d), Clock48MHz, nil
		}
	}
	if mhz30%rate == 0 {
		d := mhz30/rate - 1
		return uint16(d), Clock30MHz, nil
	}
	return 0, 0, fx2err.New(fx2err.Protocol, "solve_samplerate", errRateNotExpressible{rate})
}

type errRateTooHighFor16Bit struct{ rate uint64 }

func (e errRateTooHighFor16Bit) Error() string {
	return "samplerate exceeds 12MHz cap for 16-bit wide acquisition"
}

type errRateNotExpressible struct{ rate uint64 }

func (e errRateNotExpressible) Error() string {
	return "samplerate not expressible from either 30MHz or 48MHz parent clock"
}

// round up to the next multiple of 512.
func roundUp512(n uint64) uint64 {
	return (n + 511) &^ 511
}

// bufferSize/numTransfers implement spec.md §4.4.1 step 3's default
// transfer sizing for the base variant (and DSLogic LOGIC mode).
func bufferSize(rate uint64, width int) uint64 {
	return roundUp512(rate * uint64(width) / 100) // 10ms = rate/100
}

func numTransfers(rate uint64, width int, bufSize uint64) int {
	total := rate * uint64(width) / 2 // 500ms = rate/2
	n := total / bufSize
	if n > NumSimulTransfers {
		n = NumSimulTransfers
	}
	if n == 0 {
		n = 1
	}
	return int(n)
}

// startFlags composes the CMD_START flags byte, per spec.md §6.1.
func startFlags(wide bool, clk Clock) uint8 {
	var f uint8
	if wide {
		f |= flagSampleWide
	}
	if clk == Clock48MHz {
		f |= flagClock48
	}
	return f
}
