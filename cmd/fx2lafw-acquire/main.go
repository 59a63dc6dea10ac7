package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fx2lafw/internal/config"
	"fx2lafw/internal/driver/acquisition"
	"fx2lafw/internal/driver/device"
	"fx2lafw/internal/driver/firmware"
	"fx2lafw/internal/driver/fx2err"
	"fx2lafw/internal/driver/packet"
	"fx2lafw/internal/driver/transport"
)

// Command-line flags. The scan and device flags (conn through
// test-mode) each have a corresponding config.Key and, if left unset,
// fall through to whatever Load() picked up from .env/FX2LAFW_*
// environment variables, per spec.md §6.4. firmware-major, bitstream
// and timeout are flag-only.
var (
	conn          = flag.String("conn", "", "restrict scan to one device, formatted bus.address")
	deviceMode    = flag.String("device-mode", "", "DSLogic operating mode: Logic Analyzer, Oscilloscope, Data Acquisition")
	samplerate    = flag.Uint64("samplerate", 0, "sample rate in Hz (0 = use config/.env default)")
	limitSamples  = flag.Uint64("limit-samples", 0, "stop after this many samples (0 = unbounded)")
	externalClk   = flag.Bool("external-clock", false, "use an external clock source (DSLogic only)")
	testMode      = flag.String("test-mode", "", "None, Internal Test, External Test, DRAM Loopback Test (DSLogic only)")
	firmwareMajor = flag.Uint("firmware-major", 1, "required firmware major version")
	bitstream     = flag.String("bitstream", "", "path to the DSLogic FPGA bitstream (required for DSLogic devices)")
	runFor        = flag.Duration("timeout", 0, "stop acquisition after this long (0 = run until sample limit or Ctrl-C)")
)

func main() {
	flag.Parse()
	log.Printf("fx2lafw-acquire starting")

	profiles := append([]device.Profile(nil), device.DefaultProfiles...)
	if err := config.LoadProfileOverrides(profiles); err != nil {
		log.Fatalf("loading profile overrides: %v", err)
	}

	settings := config.Load()
	applyFlagOverrides(settings)

	scanOpts, err := config.ParseScanOptions(settings)
	if err != nil {
		log.Fatalf("parsing scan options: %v", err)
	}

	usb := transport.NewLibUSB(log.Default())
	defer usb.CloseContext()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	devices, err := device.Scan(ctx, usb, profiles, scanOpts, firmware.NopUploader{})
	if err != nil {
		log.Fatalf("scan failed: %v", err)
	}
	if len(devices) == 0 {
		log.Fatalf("no supported device found")
	}
	dc := devices[0]
	log.Printf("found %s %s at %d.%d", dc.Profile.Vendor, dc.Profile.Model, dc.Bus, dc.Address)

	if err := config.ApplyDeviceOptions(dc, settings); err != nil {
		log.Fatalf("applying device options: %v", err)
	}

	if err := device.Open(ctx, usb, dc, uint8(*firmwareMajor)); err != nil {
		log.Fatalf("open failed: %v", err)
	}
	defer usb.Close(dc.Handle)

	done := make(chan struct{})
	consumer := dumpingConsumer(done)

	if dc.Profile.IsDSLogic() {
		bits, err := loadBitstream(*bitstream)
		if err != nil {
			log.Fatalf("loading bitstream: %v", err)
		}
		if err := acquisition.StartDSLogic(ctx, usb, dc, bits, consumer); err != nil {
			log.Fatalf("start failed: %v", err)
		}
	} else {
		if err := acquisition.StartBase(ctx, usb, dc, consumer); err != nil {
			log.Fatalf("start failed: %v", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var deadline <-chan time.Time
	if *runFor > 0 {
		t := time.NewTimer(*runFor)
		defer t.Stop()
		deadline = t.C
	}

	for {
		select {
		case <-done:
			log.Printf("acquisition complete")
			return
		case <-deadline:
			log.Printf("timeout reached, stopping")
			acquisition.Abort(usb, dc)
			deadline = nil
		case <-quit:
			log.Printf("interrupt received, stopping")
			acquisition.Abort(usb, dc)
			quit = nil
		default:
			usb.Poll(50 * time.Millisecond)
		}
	}
}

// applyFlagOverrides lets explicitly-set flags win over whatever Load()
// read from .env/the environment, following the teacher's
// flag-then-config precedence in cmd/driver/hasher-host/main.go.
func applyFlagOverrides(set config.Set) {
	if *conn != "" {
		set[config.KeyConn] = config.StringValue(*conn)
	}
	if *deviceMode != "" {
		set[config.KeyDeviceMode] = config.StringValue(*deviceMode)
	}
	if *samplerate != 0 {
		set[config.KeySamplerate] = config.Uint64Value(*samplerate)
	}
	if *limitSamples != 0 {
		set[config.KeyLimitSamples] = config.Uint64Value(*limitSamples)
	}
	if *externalClk {
		set[config.KeyExternalClock] = config.BoolValue(true)
	}
	if *testMode != "" {
		set[config.KeyTestMode] = config.StringValue(*testMode)
	}
}

func loadBitstream(path string) ([]byte, error) {
	if path == "" {
		return nil, fx2err.New(fx2err.Arg, "main.load_bitstream", fmt.Errorf("-bitstream is required for DSLogic devices"))
	}
	return os.ReadFile(path)
}

// dumpingConsumer narrates every packet except per-sample data, closing
// done once END arrives. Per-sample logging is deliberately absent
// (SPEC_FULL.md A.1): at multi-MHz rates it would make acquisition
// unusable.
func dumpingConsumer(done chan struct{}) packet.Consumer {
	var samples int64
	return func(p packet.Packet) {
		switch p.Kind {
		case packet.Logic:
			if p.UnitSize > 0 {
				samples += int64(len(p.Data) / p.UnitSize)
			}
		case packet.Analog:
			samples += int64(p.Samples)
		case packet.End:
			log.Printf("acquisition: %s, %d samples total", p.Kind, samples)
			close(done)
		default:
			log.Printf("acquisition: %s", p.Kind)
		}
	}
}
