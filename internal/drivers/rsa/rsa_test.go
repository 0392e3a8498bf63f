package rsa

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/davmor83/labrig-core/internal/instrument"
)

// fakeLink is a scripted transport: canned replies per query, an ordered
// command log, and injectable failures.
type fakeLink struct {
	replies    map[string]string
	commands   []string
	raw        []byte
	rawWritten [][]byte
	timeout    time.Duration
	writeErr   error
	askErr     error
}

func newFakeLink() *fakeLink {
	return &fakeLink{replies: make(map[string]string), timeout: 5 * time.Second}
}

func (f *fakeLink) Write(cmd string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.commands = append(f.commands, cmd)
	return nil
}

func (f *fakeLink) Ask(cmd string) (string, error) {
	if f.askErr != nil {
		return "", f.askErr
	}
	f.commands = append(f.commands, cmd)
	return f.replies[cmd], nil
}

func (f *fakeLink) WriteRaw(p []byte) error {
	f.rawWritten = append(f.rawWritten, p)
	return nil
}

func (f *fakeLink) ReadRaw() ([]byte, error)   { return f.raw, nil }
func (f *fakeLink) Timeout() time.Duration     { return f.timeout }
func (f *fakeLink) SetTimeout(d time.Duration) { f.timeout = d }
func (f *fakeLink) Close() error               { return nil }

func (f *fakeLink) sent(cmd string) bool {
	for _, c := range f.commands {
		if c == cmd {
			return true
		}
	}
	return false
}

func (f *fakeLink) wireOps() int { return len(f.commands) }

// identify scripts the compound identification exchange.
func (f *fakeLink) identify() {
	f.replies["*IDN?"] = "TEKTRONIX,RSA306B,B010123,FV:3.9.0031"
	f.replies["SYST:SVPC:INST:MOD?"] = `"RSA306B"`
	f.replies["SYST:SVPC:INST:SER?"] = `"B010123"`
}

// newTestDriver returns an initialized driver over a fakeLink.
func newTestDriver(t *testing.T) (*Driver, *fakeLink) {
	t.Helper()
	link := newFakeLink()
	d, err := New(link, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := d.Initialize(instrument.InitOptions{}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return d, link
}

func TestDriver_Initialize(t *testing.T) {
	t.Run("ceremony stays off the wire", func(t *testing.T) {
		link := newFakeLink()
		d, err := New(link, Options{})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if err := d.Initialize(instrument.InitOptions{}); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
		if link.wireOps() != 0 {
			t.Errorf("ceremony touched the wire: %v", link.commands)
		}
	})

	t.Run("id query verifies the compound model", func(t *testing.T) {
		link := newFakeLink()
		link.identify()
		d, _ := New(link, Options{ExpectedID: "RSA306B"})
		if err := d.Initialize(instrument.InitOptions{IDQuery: true}); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
		model, err := d.Attributes().GetString(instrument.PathIdentityModel)
		if err != nil || model != "RSA306B/RSA306B" {
			t.Errorf("model = %q, %v", model, err)
		}
		fw, err := d.Attributes().GetString(instrument.PathIdentityFirmware)
		if err != nil || fw != "3.9.0031" {
			t.Errorf("firmware = %q, %v", fw, err)
		}
	})

	t.Run("id query rejects the wrong family member", func(t *testing.T) {
		link := newFakeLink()
		link.identify()
		d, _ := New(link, Options{ExpectedID: "RSA7100B"})
		err := d.Initialize(instrument.InitOptions{IDQuery: true})
		if !errors.Is(err, instrument.ErrIDMismatch) {
			t.Errorf("expected ErrIDMismatch, got %v", err)
		}
	})

	t.Run("reset issues the instrument preset", func(t *testing.T) {
		link := newFakeLink()
		d, _ := New(link, Options{})
		if err := d.Initialize(instrument.InitOptions{Reset: true}); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
		if !link.sent("IP") {
			t.Errorf("no IP in %v", link.commands)
		}
	})

	t.Run("operations are gated until initialized", func(t *testing.T) {
		d, _ := New(newFakeLink(), Options{})
		if err := d.SpuriousPreset(); !errors.Is(err, instrument.ErrNotInitialized) {
			t.Errorf("SpuriousPreset: expected ErrNotInitialized, got %v", err)
		}
		if err := d.AcquisitionStart(); !errors.Is(err, instrument.ErrNotInitialized) {
			t.Errorf("AcquisitionStart: expected ErrNotInitialized, got %v", err)
		}
	})
}

func TestDriver_Frequency(t *testing.T) {
	t.Run("sets use the legacy hertz form", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.Attributes().Set(PathFrequencyCenter, 1.5e9); err != nil {
			t.Fatalf("set center failed: %v", err)
		}
		if !link.sent("cf 1500000000 hz") {
			t.Errorf("commands = %v", link.commands)
		}
		if err := d.Attributes().Set(PathFrequencyOffset, 1e6); err != nil {
			t.Fatalf("set offset failed: %v", err)
		}
		if !link.sent("foffset 1e+06 hz") {
			t.Errorf("commands = %v", link.commands)
		}
		before := link.wireOps()
		v, err := d.Attributes().GetFloat(PathFrequencyCenter)
		if err != nil || v != 1.5e9 {
			t.Errorf("center = %v, %v", v, err)
		}
		if link.wireOps() != before {
			t.Errorf("cached get touched the wire")
		}
	})

	t.Run("axis sets invalidate the other view", func(t *testing.T) {
		d, link := newTestDriver(t)
		link.replies["fa?"] = "1000000"
		if v, err := d.Attributes().GetFloat(PathFrequencyStart); err != nil || v != 1e6 {
			t.Fatalf("start = %v, %v", v, err)
		}
		if err := d.Attributes().Set(PathFrequencyCenter, 2e6); err != nil {
			t.Fatalf("set center failed: %v", err)
		}
		link.replies["fa?"] = "1500000"
		if v, err := d.Attributes().GetFloat(PathFrequencyStart); err != nil || v != 1.5e6 {
			t.Errorf("start after center set = %v, %v", v, err)
		}
	})

	t.Run("axis sets retune the coupled sweep settings", func(t *testing.T) {
		d, link := newTestDriver(t)
		link.replies["rb?"] = "300000"
		if v, err := d.Attributes().GetFloat(PathResolutionBandwidth); err != nil || v != 3e5 {
			t.Fatalf("rb = %v, %v", v, err)
		}
		if err := d.Attributes().Set(PathFrequencySpan, 1e6); err != nil {
			t.Fatalf("set span failed: %v", err)
		}
		if !link.sent("sp 1000000 hz") {
			t.Errorf("commands = %v", link.commands)
		}
		link.replies["rb?"] = "10000"
		if v, err := d.Attributes().GetFloat(PathResolutionBandwidth); err != nil || v != 1e4 {
			t.Errorf("rb after span set = %v, %v", v, err)
		}
	})

	t.Run("extended sentinels pass through", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.Attributes().Set(PathFrequencyStop, "MAX"); err != nil {
			t.Fatalf("set stop failed: %v", err)
		}
		if !link.sent("fb MAX hz") {
			t.Errorf("commands = %v", link.commands)
		}
		if v, err := d.Attributes().Get(PathFrequencyStop); err != nil || v != "MAX" {
			t.Errorf("stop = %v, %v", v, err)
		}
	})
}

func TestDriver_SweepCoupling(t *testing.T) {
	t.Run("manual set drops the auto flag", func(t *testing.T) {
		d, link := newTestDriver(t)
		if v, err := d.Attributes().GetBool(PathResolutionBandwidthAuto); err != nil || !v {
			t.Fatalf("rb auto default = %v, %v", v, err)
		}
		if err := d.Attributes().Set(PathResolutionBandwidth, 30000.0); err != nil {
			t.Fatalf("set rb failed: %v", err)
		}
		if !link.sent("rb 3e+04 hz") {
			t.Errorf("commands = %v", link.commands)
		}
		if v, err := d.Attributes().GetBool(PathResolutionBandwidthAuto); err != nil || v {
			t.Errorf("rb auto after manual set = %v, %v", v, err)
		}
	})

	t.Run("enabling auto writes the auto command", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.Attributes().Set(PathSweepTime, 0.05); err != nil {
			t.Fatalf("set st failed: %v", err)
		}
		if !link.sent("st 5e-02 s") {
			t.Errorf("commands = %v", link.commands)
		}
		if err := d.Attributes().Set(PathSweepTimeAuto, true); err != nil {
			t.Fatalf("set st auto failed: %v", err)
		}
		if !link.sent("st auto") {
			t.Errorf("commands = %v", link.commands)
		}
		if v, _ := d.Attributes().GetBool(PathSweepTimeAuto); !v {
			t.Errorf("st auto not set")
		}
	})

	t.Run("disabling auto reprograms the current value", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.Attributes().Set(PathVideoBandwidth, 1000.0); err != nil {
			t.Fatalf("set vb failed: %v", err)
		}
		if err := d.Attributes().Set(PathVideoBandwidthAuto, true); err != nil {
			t.Fatalf("set vb auto failed: %v", err)
		}
		before := link.wireOps()
		if err := d.Attributes().Set(PathVideoBandwidthAuto, false); err != nil {
			t.Fatalf("clear vb auto failed: %v", err)
		}
		if link.wireOps() != before+1 || link.commands[len(link.commands)-1] != "vb 1e+03 hz" {
			t.Errorf("commands = %v", link.commands)
		}
		if v, _ := d.Attributes().GetBool(PathVideoBandwidthAuto); v {
			t.Errorf("vb auto still set")
		}
	})

	t.Run("auto flags survive a reset", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.Attributes().Set(PathVideoBandwidth, 5000.0); err != nil {
			t.Fatalf("set vb failed: %v", err)
		}
		if err := d.Reset(); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
		if v, err := d.Attributes().GetBool(PathVideoBandwidthAuto); err != nil || v {
			t.Errorf("vb auto after reset = %v, %v", v, err)
		}
		link.replies["vb?"] = "100000"
		if v, err := d.Attributes().GetFloat(PathVideoBandwidth); err != nil || v != 1e5 {
			t.Errorf("vb after reset = %v, %v", v, err)
		}
	})
}

func TestDriver_Level(t *testing.T) {
	t.Run("amplitude units map through the table", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.Attributes().Set(PathAmplitudeUnits, "dbuv"); err != nil {
			t.Fatalf("set units failed: %v", err)
		}
		if !link.sent("POW:UNIT DBUV") {
			t.Errorf("commands = %v", link.commands)
		}
		if v, err := d.Attributes().GetString(PathAmplitudeUnits); err != nil || v != "dbuv" {
			t.Errorf("units = %q, %v", v, err)
		}

		fresh, freshLink := newTestDriver(t)
		freshLink.replies["POW:UNIT?"] = "DBM"
		if v, err := fresh.Attributes().GetString(PathAmplitudeUnits); err != nil || v != "dbm" {
			t.Errorf("decoded units = %q, %v", v, err)
		}
	})

	t.Run("unknown units are rejected before the wire", func(t *testing.T) {
		d, link := newTestDriver(t)
		before := link.wireOps()
		err := d.Attributes().Set(PathAmplitudeUnits, "parsec")
		if !errors.Is(err, instrument.ErrValueNotSupported) {
			t.Errorf("expected ErrValueNotSupported, got %v", err)
		}
		if link.wireOps() != before {
			t.Errorf("rejected set touched the wire")
		}
	})

	t.Run("attenuation and reference use their native forms", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.Attributes().Set(PathLevelAttenuation, 10.0); err != nil {
			t.Fatalf("set attenuation failed: %v", err)
		}
		if err := d.Attributes().Set(PathLevelAttenuationAuto, false); err != nil {
			t.Fatalf("set attenuation auto failed: %v", err)
		}
		if err := d.Attributes().Set(PathLevelReference, -30.0); err != nil {
			t.Fatalf("set reference failed: %v", err)
		}
		if err := d.Attributes().Set(PathLevelReferenceOffset, 10.0); err != nil {
			t.Fatalf("set reference offset failed: %v", err)
		}
		for _, want := range []string{"INP:ATT 10", "INP:ATT:AUTO 0", "INP:RLEVEL -3e+01", "roffset 1e+01 db"} {
			if !link.sent(want) {
				t.Errorf("missing %q in %v", want, link.commands)
			}
		}
	})

	t.Run("input impedance is tracked locally", func(t *testing.T) {
		d, link := newTestDriver(t)
		if v, err := d.Attributes().GetFloat(PathInputImpedance); err != nil || v != 50 {
			t.Fatalf("impedance default = %v, %v", v, err)
		}
		before := link.wireOps()
		if err := d.Attributes().Set(PathInputImpedance, 75.0); err != nil {
			t.Fatalf("set impedance failed: %v", err)
		}
		if v, _ := d.Attributes().GetFloat(PathInputImpedance); v != 75 {
			t.Errorf("impedance = %v", v)
		}
		if link.wireOps() != before {
			t.Errorf("local attribute touched the wire")
		}
	})
}

func TestDriver_RF(t *testing.T) {
	t.Run("generator level and attenuation", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.Attributes().Set(PathRFLevel, -20.0); err != nil {
			t.Fatalf("set level failed: %v", err)
		}
		if !link.sent("srcpwr -2e+01") {
			t.Errorf("commands = %v", link.commands)
		}
		if err := d.Attributes().Set(PathRFAttenuation, 10.0); err != nil {
			t.Fatalf("set attenuation failed: %v", err)
		}
		if !link.sent("srcat 1e+01") {
			t.Errorf("commands = %v", link.commands)
		}
		if v, _ := d.Attributes().GetBool(PathRFAttenuationAuto); v {
			t.Errorf("attenuation auto survived a manual set")
		}
		if err := d.Attributes().Set(PathRFAttenuationAuto, true); err != nil {
			t.Fatalf("set attenuation auto failed: %v", err)
		}
		if !link.sent("srcat auto") {
			t.Errorf("commands = %v", link.commands)
		}
		if err := d.Attributes().Set(PathRFAttenuationAuto, false); err != nil {
			t.Fatalf("clear attenuation auto failed: %v", err)
		}
		if !link.sent("srcat man") {
			t.Errorf("commands = %v", link.commands)
		}
	})

	t.Run("output enable uses word commands", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.Attributes().Set(PathRFOutputEnabled, true); err != nil {
			t.Fatalf("enable failed: %v", err)
		}
		if err := d.Attributes().Set(PathRFOutputEnabled, false); err != nil {
			t.Fatalf("disable failed: %v", err)
		}
		if !link.sent("srcpwr on") || !link.sent("srcpwr off") {
			t.Errorf("commands = %v", link.commands)
		}
	})

	t.Run("power mode invalidates the power span", func(t *testing.T) {
		d, link := newTestDriver(t)
		link.replies["srcpswp?"] = "5"
		if v, err := d.Attributes().GetFloat(PathRFPowerSpan); err != nil || v != 5 {
			t.Fatalf("span = %v, %v", v, err)
		}
		if err := d.Attributes().Set(PathRFPowerMode, PowerModeSweep); err != nil {
			t.Fatalf("set mode failed: %v", err)
		}
		if !link.sent("srcpswp on") {
			t.Errorf("commands = %v", link.commands)
		}
		link.replies["srcpswp?"] = "10"
		if v, err := d.Attributes().GetFloat(PathRFPowerSpan); err != nil || v != 10 {
			t.Errorf("span after mode set = %v, %v", v, err)
		}
		err := d.Attributes().Set(PathRFPowerMode, "chirp")
		if !errors.Is(err, instrument.ErrValueNotSupported) {
			t.Errorf("expected ErrValueNotSupported, got %v", err)
		}
	})

	t.Run("power offset invalidates the level", func(t *testing.T) {
		d, link := newTestDriver(t)
		link.replies["srcpwr?"] = "-20"
		if v, err := d.Attributes().GetFloat(PathRFLevel); err != nil || v != -20 {
			t.Fatalf("level = %v, %v", v, err)
		}
		if err := d.Attributes().Set(PathRFPowerOffset, 3.0); err != nil {
			t.Fatalf("set offset failed: %v", err)
		}
		if !link.sent("srcpofs 3e+00") {
			t.Errorf("commands = %v", link.commands)
		}
		link.replies["srcpwr?"] = "-17"
		if v, err := d.Attributes().GetFloat(PathRFLevel); err != nil || v != -17 {
			t.Errorf("level after offset set = %v, %v", v, err)
		}
	})

	t.Run("tracking adjust is an integer", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.Attributes().Set(PathRFTrackingAdjust, 42); err != nil {
			t.Fatalf("set adjust failed: %v", err)
		}
		if !link.sent("srctk 42") {
			t.Errorf("commands = %v", link.commands)
		}
		if err := d.RFTrackingPeak(); err != nil {
			t.Fatalf("RFTrackingPeak failed: %v", err)
		}
		if !link.sent("srctkpk") {
			t.Errorf("commands = %v", link.commands)
		}
	})

	t.Run("alc source decodes the lowercase mnemonics", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.Attributes().Set(PathALCSource, ALCSourceExternal); err != nil {
			t.Fatalf("set alc failed: %v", err)
		}
		if !link.sent("srcalc ext") {
			t.Errorf("commands = %v", link.commands)
		}

		fresh, freshLink := newTestDriver(t)
		freshLink.replies["srcalc?"] = "int"
		if v, err := fresh.Attributes().GetString(PathALCSource); err != nil || v != ALCSourceInternal {
			t.Errorf("alc = %q, %v", v, err)
		}
	})
}

func TestDriver_Oscillator(t *testing.T) {
	t.Run("source round trip", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.Attributes().Set(PathOscillatorSource, OscillatorSourceExternal); err != nil {
			t.Fatalf("set source failed: %v", err)
		}
		if !link.sent("ROSC:SOUR EXT") {
			t.Errorf("commands = %v", link.commands)
		}

		fresh, freshLink := newTestDriver(t)
		freshLink.replies["ROSC:SOUR?"] = "INT"
		if v, err := fresh.Attributes().GetString(PathOscillatorSource); err != nil || v != OscillatorSourceInternal {
			t.Errorf("source = %q, %v", v, err)
		}
	})

	t.Run("lock status is read live", func(t *testing.T) {
		d, link := newTestDriver(t)
		link.replies["ROSC:EXT:TIME:STAT?"] = "1"
		before := link.wireOps()
		for i := 0; i < 2; i++ {
			v, err := d.Attributes().GetBool(PathOscillatorLocked)
			if err != nil || !v {
				t.Fatalf("locked = %v, %v", v, err)
			}
		}
		if link.wireOps() != before+2 {
			t.Errorf("lock status was cached")
		}
		err := d.Attributes().Set(PathOscillatorLocked, true)
		if !errors.Is(err, instrument.ErrReadOnlyAttribute) {
			t.Errorf("expected ErrReadOnlyAttribute, got %v", err)
		}
	})
}

func TestDriver_Acquisition(t *testing.T) {
	t.Run("continuous and detector", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.Attributes().Set(PathContinuous, false); err != nil {
			t.Fatalf("set continuous failed: %v", err)
		}
		if !link.sent("INIT:CONT 0;*WAI") {
			t.Errorf("commands = %v", link.commands)
		}
		if err := d.Attributes().Set(PathDetectorType, DetectorMinimumPeak); err != nil {
			t.Fatalf("set detector failed: %v", err)
		}
		if !link.sent(":det neg") {
			t.Errorf("commands = %v", link.commands)
		}

		fresh, freshLink := newTestDriver(t)
		freshLink.replies["det?"] = "smp"
		if v, err := fresh.Attributes().GetString(PathDetectorType); err != nil || v != DetectorSample {
			t.Errorf("detector = %q, %v", v, err)
		}
	})

	t.Run("vertical scale decodes the log factor", func(t *testing.T) {
		d, link := newTestDriver(t)
		link.replies["lg?"] = "0"
		if v, err := d.Attributes().GetString(PathVerticalScale); err != nil || v != VerticalScaleLinear {
			t.Fatalf("scale = %q, %v", v, err)
		}
		if err := d.Attributes().Set(PathVerticalScale, VerticalScaleLogarithmic); err != nil {
			t.Fatalf("set scale failed: %v", err)
		}
		if !link.sent("lg") {
			t.Errorf("commands = %v", link.commands)
		}
		err := d.Attributes().Set(PathVerticalScale, "decibel")
		if !errors.Is(err, instrument.ErrValueNotSupported) {
			t.Errorf("expected ErrValueNotSupported, got %v", err)
		}
	})

	t.Run("scale changes move the reference level", func(t *testing.T) {
		d, link := newTestDriver(t)
		link.replies["INP:RLEVEL?"] = "-10"
		if v, err := d.Attributes().GetFloat(PathLevelReference); err != nil || v != -10 {
			t.Fatalf("reference = %v, %v", v, err)
		}
		if err := d.Attributes().Set(PathVerticalScale, VerticalScaleLinear); err != nil {
			t.Fatalf("set scale failed: %v", err)
		}
		if !link.sent("ln") {
			t.Errorf("commands = %v", link.commands)
		}
		link.replies["INP:RLEVEL?"] = "-30"
		if v, err := d.Attributes().GetFloat(PathLevelReference); err != nil || v != -30 {
			t.Errorf("reference after scale set = %v, %v", v, err)
		}
	})

	t.Run("state machine follows start, resume, and abort", func(t *testing.T) {
		d, link := newTestDriver(t)
		if d.AcquisitionState() != instrument.AcqIdle {
			t.Fatalf("state = %v", d.AcquisitionState())
		}
		if err := d.AcquisitionStart(); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		if !link.sent("INIT:IMM;*WAI") || d.AcquisitionState() != instrument.AcqAcquiring {
			t.Errorf("state = %v, commands = %v", d.AcquisitionState(), link.commands)
		}
		if err := d.AcquisitionAbort(); err != nil {
			t.Fatalf("abort failed: %v", err)
		}
		if !link.sent("ABOR") || d.AcquisitionState() != instrument.AcqIdle {
			t.Errorf("state = %v after abort", d.AcquisitionState())
		}
		if err := d.AcquisitionResume(); err != nil {
			t.Fatalf("resume failed: %v", err)
		}
		if !link.sent("INIT:RES;*WAI") || d.AcquisitionState() != instrument.AcqAcquiring {
			t.Errorf("state = %v after resume", d.AcquisitionState())
		}
	})
}

func TestDriver_Traces(t *testing.T) {
	t.Run("collections carry the fixed names", func(t *testing.T) {
		d, _ := newTestDriver(t)
		traces, err := d.Attributes().Collections().Get(CollectionTraces)
		if err != nil {
			t.Fatalf("traces collection missing: %v", err)
		}
		names := traces.Names()
		if len(names) != 5 || names[0] != "Trace 1" || names[4] != "Math" {
			t.Errorf("trace names = %v", names)
		}
		ranges, err := d.Attributes().Collections().Get(CollectionRanges)
		if err != nil {
			t.Fatalf("ranges collection missing: %v", err)
		}
		if ranges.Count() != 20 || ranges.Names()[0] != "A" || ranges.Names()[19] != "T" {
			t.Errorf("range names = %v", ranges.Names())
		}
	})

	t.Run("trace types are per trace and local", func(t *testing.T) {
		d, link := newTestDriver(t)
		if v, err := d.Attributes().GetAt(PathTraceType, instrument.ByName("Trace 3")); err != nil || v != TraceTypeClearWrite {
			t.Fatalf("default type = %v, %v", v, err)
		}
		if err := d.Attributes().SetAt(PathTraceType, instrument.ByName("Trace 2"), TraceTypeMaximumHold); err != nil {
			t.Fatalf("set type failed: %v", err)
		}
		if v, _ := d.Attributes().GetAt(PathTraceType, instrument.ByIndex(1)); v != TraceTypeMaximumHold {
			t.Errorf("trace 2 type = %v", v)
		}
		if v, _ := d.Attributes().GetAt(PathTraceType, instrument.ByIndex(0)); v != TraceTypeClearWrite {
			t.Errorf("trace 1 type = %v", v)
		}
		err := d.Attributes().SetAt(PathTraceType, instrument.ByIndex(0), "persist")
		if !errors.Is(err, instrument.ErrValueNotSupported) {
			t.Errorf("expected ErrValueNotSupported, got %v", err)
		}
		if link.wireOps() != 0 {
			t.Errorf("trace types touched the wire: %v", link.commands)
		}
		if err := d.Reset(); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
		if v, _ := d.Attributes().GetAt(PathTraceType, instrument.ByIndex(1)); v != TraceTypeMaximumHold {
			t.Errorf("trace type lost on reset: %v", v)
		}
	})

	t.Run("ambient selection picks the trace", func(t *testing.T) {
		d, _ := newTestDriver(t)
		if err := d.Attributes().SetAt(PathTraceType, instrument.ByName("Math"), TraceTypeView); err != nil {
			t.Fatalf("set type failed: %v", err)
		}
		if err := d.Attributes().Collections().Select(CollectionTraces, instrument.ByName("Math")); err != nil {
			t.Fatalf("select failed: %v", err)
		}
		if v, err := d.Attributes().Get(PathTraceType); err != nil || v != TraceTypeView {
			t.Errorf("ambient type = %v, %v", v, err)
		}
	})

	t.Run("count reset addresses the one-based trace", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.TraceCountReset(instrument.ByName("Math")); err != nil {
			t.Fatalf("TraceCountReset failed: %v", err)
		}
		if !link.sent("TRAC5:SPUR:COUN:RES") {
			t.Errorf("commands = %v", link.commands)
		}
		err := d.TraceCountReset(instrument.ByName("Trace 9"))
		if !errors.Is(err, instrument.ErrSelectorRange) {
			t.Errorf("expected ErrSelectorRange, got %v", err)
		}
	})
}

func TestDriver_SpuriousConfig(t *testing.T) {
	t.Run("range writes use the one-based prefix", func(t *testing.T) {
		d, link := newTestDriver(t)
		err := d.Attributes().SetAt(PathSpuriousRangeConfig, instrument.ByName("A"), map[string]any{
			"state":     true,
			"threshold": -70.0,
		})
		if err != nil {
			t.Fatalf("set range config failed: %v", err)
		}
		if !link.sent(":SPUR:RANG1:STAT 1") || !link.sent(":SPUR:RANG1:THR -70") {
			t.Errorf("commands = %v", link.commands)
		}
	})

	t.Run("unknown keys fail before the wire", func(t *testing.T) {
		d, link := newTestDriver(t)
		before := link.wireOps()
		err := d.Attributes().SetAt(PathSpuriousRangeConfig, instrument.ByIndex(0), map[string]any{
			"state": true,
			"bogus": 1,
		})
		if !errors.Is(err, instrument.ErrValueNotSupported) {
			t.Errorf("expected ErrValueNotSupported, got %v", err)
		}
		if link.wireOps() != before {
			t.Errorf("rejected config touched the wire: %v", link.commands)
		}
	})

	t.Run("wrong field types fail before the wire", func(t *testing.T) {
		d, link := newTestDriver(t)
		before := link.wireOps()
		err := d.Attributes().Set(PathSpuriousConfig, map[string]any{"reference_power": "loud"})
		if !errors.Is(err, instrument.ErrValueNotSupported) {
			t.Errorf("expected ErrValueNotSupported, got %v", err)
		}
		if link.wireOps() != before {
			t.Errorf("rejected config touched the wire: %v", link.commands)
		}
	})

	t.Run("reads decode every field", func(t *testing.T) {
		d, link := newTestDriver(t)
		link.replies[":SPUR:LIST?"] = "ALL"
		link.replies[":SPUR:MODE?"] = "EXAM"
		link.replies[":SPUR:OPT?"] = "AUTO"
		link.replies[":SPUR:POIN:COUN?"] = "801"
		link.replies[":SPUR:REF?"] = "CARR"
		link.replies[":SPUR:REF:MAN:POW?"] = "-10"
		v, err := d.Attributes().Get(PathSpuriousConfig)
		if err != nil {
			t.Fatalf("get config failed: %v", err)
		}
		cfg := v.(map[string]any)
		if cfg["mode"] != "EXAM" || cfg["points_count"] != "801" || cfg["reference_power"] != -10.0 {
			t.Errorf("config = %v", cfg)
		}
	})

	t.Run("trace block addresses the selected trace", func(t *testing.T) {
		d, link := newTestDriver(t)
		err := d.Attributes().SetAt(PathSpuriousTraceConfig, instrument.ByIndex(1), map[string]any{
			"enabled": true,
			"count":   100,
		})
		if err != nil {
			t.Fatalf("set trace config failed: %v", err)
		}
		if !link.sent(":TRAC2:SPUR:ENAB 1") || !link.sent(":TRAC2:SPUR:COUN 100") {
			t.Errorf("commands = %v", link.commands)
		}
	})

	t.Run("display block round trip", func(t *testing.T) {
		d, link := newTestDriver(t)
		err := d.Attributes().Set(PathDisplaySpuriousConfig, map[string]any{
			"select_number":  3,
			"graticule_grid": false,
		})
		if err != nil {
			t.Fatalf("set display config failed: %v", err)
		}
		if !link.sent(":DISP:SPUR:SEL:NUMB 3") || !link.sent(":DISP:SPUR:WIND:TRAC:GRAT:GRID:STAT 0") {
			t.Errorf("commands = %v", link.commands)
		}
	})

	t.Run("preset selects the application", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.SpuriousPreset(); err != nil {
			t.Fatalf("SpuriousPreset failed: %v", err)
		}
		if !link.sent("SYST:PRES:APPL SPUR") {
			t.Errorf("commands = %v", link.commands)
		}
	})
}

func TestDriver_Display(t *testing.T) {
	t.Run("title is write-only on the wire", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.Attributes().Set(PathDisplayTitle, "EMC sweep 3"); err != nil {
			t.Fatalf("set title failed: %v", err)
		}
		if !link.sent(`TITLE \EMC sweep 3\`) {
			t.Errorf("commands = %v", link.commands)
		}
		before := link.wireOps()
		if v, err := d.Attributes().GetString(PathDisplayTitle); err != nil || v != "EMC sweep 3" {
			t.Errorf("title = %q, %v", v, err)
		}
		if link.wireOps() != before {
			t.Errorf("title get touched the wire")
		}
	})

	t.Run("advisory text is positioned first", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.DisplayString("CAL IN PROGRESS"); err != nil {
			t.Fatalf("DisplayString failed: %v", err)
		}
		want := []string{"PU", "PA 8,137", "HD", `TEXT \CAL IN PROGRESS\`}
		if len(link.commands) != len(want) {
			t.Fatalf("commands = %v", link.commands)
		}
		for i, cmd := range want {
			if link.commands[i] != cmd {
				t.Errorf("command %d = %q, want %q", i, link.commands[i], cmd)
			}
		}
	})

	t.Run("clear erases the display", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.DisplayClear(); err != nil {
			t.Fatalf("DisplayClear failed: %v", err)
		}
		if !link.sent("HD") || !link.sent("CLRDSP") {
			t.Errorf("commands = %v", link.commands)
		}
	})
}

func TestDriver_Memory(t *testing.T) {
	d, link := newTestDriver(t)
	if err := d.SaveToMemory(8); err != nil {
		t.Fatalf("SaveToMemory failed: %v", err)
	}
	if !link.sent("SAVES 9") {
		t.Errorf("commands = %v", link.commands)
	}
	if err := d.SaveToMemory(9); !errors.Is(err, instrument.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}

	if err := d.Attributes().Set(PathFrequencyCenter, 1e9); err != nil {
		t.Fatalf("set center failed: %v", err)
	}
	if err := d.RecallFromMemory(0); err != nil {
		t.Fatalf("RecallFromMemory failed: %v", err)
	}
	if !link.sent("RCLS 1") {
		t.Errorf("commands = %v", link.commands)
	}
	link.replies["cf?"] = "2000000000"
	if v, err := d.Attributes().GetFloat(PathFrequencyCenter); err != nil || v != 2e9 {
		t.Errorf("center after recall = %v, %v", v, err)
	}
}

func TestDriver_Setup(t *testing.T) {
	t.Run("save reads the learn string", func(t *testing.T) {
		d, link := newTestDriver(t)
		link.raw = []byte{0x23, 0x41, 0x01, 0x02}
		blob, err := d.SaveSetup()
		if err != nil {
			t.Fatalf("SaveSetup failed: %v", err)
		}
		if !link.sent("OL?") || !bytes.Equal(blob, link.raw) {
			t.Errorf("blob = %v, commands = %v", blob, link.commands)
		}
	})

	t.Run("load writes it back and drops the cache", func(t *testing.T) {
		d, link := newTestDriver(t)
		if err := d.Attributes().Set(PathFrequencyCenter, 1e9); err != nil {
			t.Fatalf("set center failed: %v", err)
		}
		blob := []byte{0x23, 0x41, 0x09}
		if err := d.LoadSetup(blob); err != nil {
			t.Fatalf("LoadSetup failed: %v", err)
		}
		if len(link.rawWritten) != 1 || !bytes.Equal(link.rawWritten[0], blob) {
			t.Errorf("raw writes = %v", link.rawWritten)
		}
		link.replies["cf?"] = "500000000"
		if v, err := d.Attributes().GetFloat(PathFrequencyCenter); err != nil || v != 5e8 {
			t.Errorf("center after load = %v, %v", v, err)
		}
	})
}

func TestDriver_SelfTest(t *testing.T) {
	d, link := newTestDriver(t)
	link.replies["CNF?"] = "0"
	code, err := d.SelfTest()
	if err != nil || code != 0 {
		t.Errorf("SelfTest = %d, %v", code, err)
	}
	link.replies["CNF?"] = "ready"
	if _, err := d.SelfTest(); !errors.Is(err, instrument.ErrProtocol) {
		t.Errorf("expected ErrProtocol, got %v", err)
	}
}

func TestDriver_Identity(t *testing.T) {
	d, link := newTestDriver(t)
	link.identify()
	manufacturer, err := d.Attributes().GetString(instrument.PathIdentityManufacturer)
	if err != nil || manufacturer != "TEKTRONIX" {
		t.Errorf("manufacturer = %q, %v", manufacturer, err)
	}
	before := link.wireOps()
	serial, err := d.Attributes().GetString(instrument.PathIdentitySerial)
	if err != nil || serial != "B010123/B010123" {
		t.Errorf("serial = %q, %v", serial, err)
	}
	if link.wireOps() != before {
		t.Errorf("one identification load should fill every identity field")
	}
}

func TestDriver_Describe(t *testing.T) {
	d, _ := newTestDriver(t)
	infos := d.Attributes().Describe()
	if infos[0].Path != instrument.PathOperationCache {
		t.Errorf("first attribute = %q", infos[0].Path)
	}
	if infos[len(infos)-1].Path != instrument.PathIdentityFirmware {
		t.Errorf("last attribute = %q", infos[len(infos)-1].Path)
	}
	byPath := make(map[instrument.Path]instrument.Info, len(infos))
	for _, info := range infos {
		byPath[info.Path] = info
	}
	if !byPath[PathFrequencyCenter].Writable {
		t.Errorf("frequency.center should be writable")
	}
	if byPath[PathOscillatorLocked].Writable {
		t.Errorf("oscillator.locked should be read-only")
	}
	if !byPath[PathTraceType].Indexed {
		t.Errorf("traces[].type should be indexed")
	}
}

func TestDriver_Simulate(t *testing.T) {
	d, err := New(nil, Options{Simulate: true, Model: "RSA306B", ExpectedID: "RSA306B"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := d.Initialize(instrument.InitOptions{IDQuery: true, Reset: true}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if v, err := d.Attributes().GetFloat(PathInputImpedance); err != nil || v != 50 {
		t.Errorf("impedance = %v, %v", v, err)
	}
	if v, err := d.Attributes().GetBool(PathResolutionBandwidthAuto); err != nil || !v {
		t.Errorf("rb auto = %v, %v", v, err)
	}
	if v, err := d.Attributes().GetString(PathAmplitudeUnits); err != nil || v != "dbm" {
		t.Errorf("units = %q, %v", v, err)
	}

	if err := d.Attributes().Set(PathFrequencyCenter, 2.4e9); err != nil {
		t.Fatalf("set center failed: %v", err)
	}
	if v, err := d.Attributes().GetFloat(PathFrequencyCenter); err != nil || v != 2.4e9 {
		t.Errorf("center = %v, %v", v, err)
	}

	model, err := d.Attributes().GetString(instrument.PathIdentityModel)
	if err != nil || model != instrument.SimulatedPlaceholder {
		t.Errorf("model = %q, %v", model, err)
	}

	cfg, err := d.Attributes().Get(PathSpuriousConfig)
	if err != nil || len(cfg.(map[string]any)) != 0 {
		t.Errorf("config = %v, %v", cfg, err)
	}
	err = d.Attributes().Set(PathSpuriousConfig, map[string]any{"bogus": 1})
	if !errors.Is(err, instrument.ErrValueNotSupported) {
		t.Errorf("expected ErrValueNotSupported, got %v", err)
	}

	if err := d.SpuriousPreset(); err != nil {
		t.Errorf("SpuriousPreset failed: %v", err)
	}
	if err := d.DisplayClear(); err != nil {
		t.Errorf("DisplayClear failed: %v", err)
	}
	if blob, err := d.SaveSetup(); err != nil || blob != nil {
		t.Errorf("SaveSetup = %v, %v", blob, err)
	}
	if err := d.AcquisitionStart(); err != nil || d.AcquisitionState() != instrument.AcqAcquiring {
		t.Errorf("start = %v, state = %v", err, d.AcquisitionState())
	}
	if code, err := d.SelfTest(); err != nil || code != 0 {
		t.Errorf("SelfTest = %d, %v", code, err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
