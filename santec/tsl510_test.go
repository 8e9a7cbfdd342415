package santec

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/cavitytune/util"
)

func newMocked() (*TSL510, *Mock) {
	m := NewMock()
	return New(m, DefaultLimits), m
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestUnitConversions(t *testing.T) {
	if !approx(DBmToMilliwatt(0), 1, 1e-12) || !approx(DBmToMilliwatt(10), 10, 1e-12) {
		t.Error("dBm to mW disagrees at 0 and 10 dBm")
	}
	if !approx(MilliwattToDBm(100), 20, 1e-12) {
		t.Error("100 mW should be 20 dBm")
	}
	if !math.IsInf(MilliwattToDBm(0), -1) {
		t.Error("0 mW should be -Inf dBm")
	}
	if !approx(NanometerToTHz(1550), 193.41448903, 1e-6) {
		t.Errorf("1550 nm is %v THz", NanometerToTHz(1550))
	}
	if !approx(THzToNanometer(NanometerToTHz(1310)), 1310, 1e-9) {
		t.Error("nm to THz does not round trip")
	}
}

func TestParseUnits(t *testing.T) {
	for in, want := range map[string]PowerUnit{"dBm": DBm, "DBM": DBm, " mw ": MW} {
		got, err := ParsePowerUnit(in)
		if err != nil || got != want {
			t.Errorf("ParsePowerUnit(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePowerUnit("W"); err == nil {
		t.Error("W is not a power unit the instrument understands")
	}
	for in, want := range map[string]WavelengthUnit{"nm": Nanometer, "thz": THz} {
		got, err := ParseWavelengthUnit(in)
		if err != nil || got != want {
			t.Errorf("ParseWavelengthUnit(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseWavelengthUnit("um"); err == nil {
		t.Error("um is not a wavelength unit the instrument understands")
	}
}

func TestIdentifyAndVerify(t *testing.T) {
	tsl, m := newMocked()
	id, err := tsl.Identify()
	if err != nil {
		t.Fatal(err)
	}
	if id != m.IDN {
		t.Errorf("expected %q got %q", m.IDN, id)
	}
	if err = tsl.Verify(); err != nil {
		t.Error(err)
	}
	m.IDN = "SANTEC,TSL-210,0,0"
	if err = tsl.Verify(); !errors.Is(err, ErrWrongInstrument) {
		t.Errorf("expected ErrWrongInstrument, got %v", err)
	}
}

func TestEmission(t *testing.T) {
	tsl, m := newMocked()
	if err := tsl.SetEmission(true); err != nil {
		t.Fatal(err)
	}
	if m.LastSent() != ":POW:STAT 1" {
		t.Errorf("expected :POW:STAT 1 got %q", m.LastSent())
	}
	on, err := tsl.GetEmission()
	if err != nil || !on {
		t.Errorf("expected emission on, got %v %v", on, err)
	}
	if err = tsl.LDOff(); err != nil {
		t.Fatal(err)
	}
	if m.LastSent() != ":POW:STAT 0" || m.Emission {
		t.Errorf("LDOff sent %q, mock emission %v", m.LastSent(), m.Emission)
	}
}

func TestSetPowerDBmReadTrueMilliwatt(t *testing.T) {
	tsl, _ := newMocked()
	if err := tsl.SetEmission(true); err != nil {
		t.Fatal(err)
	}
	if err := tsl.SetPower(0, DBm); err != nil {
		t.Fatal(err)
	}
	mw, err := tsl.GetPowerTrue(MW)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(mw, 1, 1e-9) {
		t.Errorf("expected 1 mW, got %v", mw)
	}
}

func TestSetPowerConvertsToInstrumentUnit(t *testing.T) {
	tsl, m := newMocked()
	if err := tsl.SetPowerUnit(MW); err != nil {
		t.Fatal(err)
	}
	if err := tsl.SetPower(3, DBm); err != nil {
		t.Fatal(err)
	}
	// 3 dBm in mW
	want := ":POW " + fmtFloat(DBmToMilliwatt(3))
	if m.LastSent() != want {
		t.Errorf("expected %q got %q", want, m.LastSent())
	}
	dbm, err := tsl.GetPower(DBm)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(dbm, 3, 1e-9) {
		t.Errorf("expected 3 dBm setpoint, got %v", dbm)
	}
	u, err := tsl.GetPowerUnit()
	if err != nil || u != MW {
		t.Errorf("expected mW display unit, got %v %v", u, err)
	}
}

func TestSetPowerOutOfRangeSendsNothing(t *testing.T) {
	tsl, m := newMocked()
	tests := []struct {
		v    float64
		unit PowerUnit
	}{
		{20, DBm},
		{-40, DBm},
		{0, MW},
		{-1, MW},
		{1000, MW},
	}
	for _, tt := range tests {
		err := tsl.SetPower(tt.v, tt.unit)
		var oor *OutOfRangeError
		if !errors.As(err, &oor) {
			t.Errorf("SetPower(%v, %s): expected OutOfRangeError, got %v", tt.v, tt.unit, err)
		}
	}
	if len(m.Sent) != 0 {
		t.Errorf("expected nothing sent, got %v", m.Sent)
	}
}

func TestWavelengthInTHz(t *testing.T) {
	tsl, m := newMocked()
	if err := tsl.SetWavelengthUnit(THz); err != nil {
		t.Fatal(err)
	}
	if err := tsl.SetWavelength(1560); err != nil {
		t.Fatal(err)
	}
	want := ":WAV " + fmtFloat(NanometerToTHz(1560))
	if m.LastSent() != want {
		t.Errorf("expected %q got %q", want, m.LastSent())
	}
	nm, err := tsl.GetWavelength()
	if err != nil {
		t.Fatal(err)
	}
	if !approx(nm, 1560, 1e-9) {
		t.Errorf("expected 1560 nm, got %v", nm)
	}
	var oor *OutOfRangeError
	if err = tsl.SetWavelength(1400); !errors.As(err, &oor) {
		t.Errorf("expected OutOfRangeError for 1400 nm, got %v", err)
	}
	if oor != nil && (oor.Parameter != "wavelength" || oor.Unit != "nm") {
		t.Errorf("unexpected error fields %+v", oor)
	}
}

func TestSetColorUsesInstrumentUnit(t *testing.T) {
	tsl, m := newMocked()
	if err := tsl.SetColor(1555.5); err != nil {
		t.Fatal(err)
	}
	if m.LastSent() != ":WAV 1555.5" || m.Wavelength != 1555.5 {
		t.Errorf("SetColor sent %q, mock at %v nm", m.LastSent(), m.Wavelength)
	}
	m.WavelengthUnit = THz
	if err := tsl.SetColor(193); err != nil {
		t.Fatal(err)
	}
	if m.LastSent() != ":WAV 193" {
		t.Errorf("SetColor in THz sent %q", m.LastSent())
	}
}

func TestSetColorOutOfRangeSendsNothing(t *testing.T) {
	tsl, m := newMocked()
	for _, v := range []float64{5000, 0, -193, math.NaN()} {
		var oor *OutOfRangeError
		if err := tsl.SetColor(v); !errors.As(err, &oor) {
			t.Errorf("SetColor(%v): expected OutOfRangeError, got %v", v, err)
		}
	}
	if len(m.Sent) != 0 {
		t.Errorf("expected nothing sent, got %v", m.Sent)
	}
}

func TestRangesAndRefresh(t *testing.T) {
	tsl, m := newMocked()
	m.Limits = Limits{
		Wavelength: util.Limiter{Min: 1510, Max: 1620},
		Power:      util.Limiter{Min: -15, Max: 7},
	}
	p, err := tsl.RangePower()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m.Limits.Power, p); diff != "" {
		t.Errorf("power range mismatch (-want +got):\n%s", diff)
	}
	l, err := tsl.RefreshLimits()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m.Limits, l); diff != "" {
		t.Errorf("limits mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(m.Limits, tsl.Limits()); diff != "" {
		t.Errorf("refreshed limits not kept (-want +got):\n%s", diff)
	}
	if err = tsl.SetPower(8, DBm); err == nil {
		t.Error("8 dBm should be outside the refreshed limits")
	}
}

func TestStatus(t *testing.T) {
	tsl, m := newMocked()
	m.Emission = true
	m.ShutterClosed = true
	m.AutoAttenuation = false
	m.PowerUnit = MW
	s, err := tsl.Status()
	if err != nil {
		t.Fatal(err)
	}
	want := Status{Emission: true, ShutterClosed: true, PowerUnit: MW, WavelengthUnit: Nanometer}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
	if mp := s.Map(); !mp["emission"] || !mp["powerUnitMW"] || mp["wavelengthTHz"] {
		t.Errorf("unexpected status map %v", mp)
	}
}

func TestProtocolError(t *testing.T) {
	tsl, m := newMocked()
	m.Override[":WAV?"] = "garbage"
	_, err := tsl.GetWavelength()
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if pe.Command != ":WAV?" || pe.Response != "garbage" {
		t.Errorf("unexpected error fields %+v", pe)
	}
	m.Override[":POW:STAT?"] = "2"
	if _, err = tsl.GetEmission(); !errors.As(err, &pe) {
		t.Errorf("expected ProtocolError for a flag of 2, got %v", err)
	}
}

type brokenConn struct{}

var errBroken = errors.New("broken")

func (brokenConn) WriteLine(string) error     { return errBroken }
func (brokenConn) ReadLine() (string, error) { return "", errBroken }

func TestTransportErrorIsWrapped(t *testing.T) {
	tsl := New(brokenConn{}, DefaultLimits)
	if _, err := tsl.Identify(); !errors.Is(err, errBroken) {
		t.Errorf("expected the transport error to be wrapped, got %v", err)
	}
	if err := tsl.Close(); err != nil {
		t.Errorf("closing a conn without Close should be a no-op, got %v", err)
	}
}
