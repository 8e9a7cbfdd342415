/*Package santec contains a driver for the Santec TSL-510 tunable laser.

The TSL-510 speaks a line oriented text protocol over RS232, GPIB (usually
behind a LAN gateway), or USB.  Setters are validated against Limits before
anything is sent.  Powers are given in either dBm or mW and converted to
whichever unit the instrument is displaying; wavelengths are in nm unless
stated otherwise.

The laser diode should be left to settle for LDWarmup after power on, or
after it was last turned off, before emission is enabled.
*/
package santec

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nasa-jpl/cavitytune/comm"
	"github.com/nasa-jpl/cavitytune/util"
)

const (
	// LDWarmup is the wait between power on (or LD off) and LD on
	LDWarmup = 30 * time.Second

	// Model is the substring of *IDN? which identifies the instrument
	Model = "TSL-510"
)

// ErrWrongInstrument is returned by Verify when *IDN? does not contain Model
var ErrWrongInstrument = errors.New("santec: instrument is not a " + Model)

// LineConn exchanges single lines of text with the instrument
type LineConn interface {
	WriteLine(string) error
	ReadLine() (string, error)
}

// Limits are the settable ranges of the instrument.  Wavelength is in nm,
// power in dBm.  A zero Limiter is not enforced.
type Limits struct {
	Wavelength util.Limiter `yaml:"Wavelength"`
	Power      util.Limiter `yaml:"Power"`
}

// DefaultLimits covers the C and L band model
var DefaultLimits = Limits{
	Wavelength: util.Limiter{Min: 1500, Max: 1630},
	Power:      util.Limiter{Min: -20, Max: 10},
}

// Status is a snapshot of the instrument flags
type Status struct {
	// Emission is true when the laser diode is on
	Emission bool

	// AutoAttenuation is true in automatic power control, false in manual
	AutoAttenuation bool

	// ShutterClosed is true when the internal shutter is closed
	ShutterClosed bool

	PowerUnit      PowerUnit
	WavelengthUnit WavelengthUnit
}

// Map flattens the status to booleans, for transmission over HTTP
func (s Status) Map() map[string]bool {
	return map[string]bool{
		"emission":        s.Emission,
		"autoAttenuation": s.AutoAttenuation,
		"shutterClosed":   s.ShutterClosed,
		"powerUnitMW":     s.PowerUnit == MW,
		"wavelengthTHz":   s.WavelengthUnit == THz,
	}
}

// TSL510 is a Santec TSL-510 tunable laser
type TSL510 struct {
	sync.Mutex

	conn   LineConn
	limits Limits
}

// New returns a controller talking over conn
func New(conn LineConn, limits Limits) *TSL510 {
	return &TSL510{conn: conn, limits: limits}
}

// Open connects to the instrument described by cfg and verifies that it is
// a TSL-510.  The instrument terminates lines with CR; the default
// terminators are used when cfg leaves them empty.
func Open(cfg comm.Config, limits Limits) (*TSL510, error) {
	rd, err := comm.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err = rd.Open(); err != nil {
		return nil, err
	}
	t := New(rd, limits)
	if err = t.Verify(); err != nil {
		rd.Close()
		return nil, err
	}
	return t, nil
}

// Close closes the connection, if it can be closed
func (t *TSL510) Close() error {
	if c, ok := t.conn.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Limits returns the limits the controller enforces
func (t *TSL510) Limits() Limits {
	t.Lock()
	defer t.Unlock()
	return t.limits
}

// write sends a command which has no response
func (t *TSL510) write(cmd string) error {
	if err := t.conn.WriteLine(cmd); err != nil {
		return fmt.Errorf("santec: sending %s: %w", cmd, err)
	}
	return nil
}

// query sends a command and reads the one line response
func (t *TSL510) query(cmd string) (string, error) {
	if err := t.write(cmd); err != nil {
		return "", err
	}
	resp, err := t.conn.ReadLine()
	if err != nil {
		return "", fmt.Errorf("santec: reading response to %s: %w", cmd, err)
	}
	return strings.TrimSpace(resp), nil
}

func (t *TSL510) queryFloat(cmd string) (float64, error) {
	resp, err := t.query(cmd)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, &ProtocolError{Command: cmd, Response: resp, Err: err}
	}
	return f, nil
}

// queryFlag reads a 0/1 response
func (t *TSL510) queryFlag(cmd string) (bool, error) {
	resp, err := t.query(cmd)
	if err != nil {
		return false, err
	}
	// some firmware answers "+1" or "1.000"
	f, err := strconv.ParseFloat(resp, 64)
	if err != nil || (f != 0 && f != 1) {
		return false, &ProtocolError{Command: cmd, Response: resp, Err: err}
	}
	return f == 1, nil
}

// Identify returns the response to *IDN?
func (t *TSL510) Identify() (string, error) {
	t.Lock()
	defer t.Unlock()
	return t.query("*IDN?")
}

// Verify returns ErrWrongInstrument if the instrument does not identify as
// a TSL-510
func (t *TSL510) Verify() error {
	id, err := t.Identify()
	if err != nil {
		return err
	}
	if !strings.Contains(id, Model) {
		return fmt.Errorf("%w: *IDN? %q", ErrWrongInstrument, id)
	}
	return nil
}

// SetEmission turns the laser diode on (true) or off (false)
func (t *TSL510) SetEmission(on bool) error {
	t.Lock()
	defer t.Unlock()
	return t.write(":POW:STAT " + flag(on))
}

// GetEmission returns true if the laser diode is on
func (t *TSL510) GetEmission() (bool, error) {
	t.Lock()
	defer t.Unlock()
	return t.queryFlag(":POW:STAT?")
}

// LDOff turns the laser diode off
func (t *TSL510) LDOff() error {
	return t.SetEmission(false)
}

// SetPowerUnit changes the unit the instrument displays and accepts power in
func (t *TSL510) SetPowerUnit(u PowerUnit) error {
	if u != DBm && u != MW {
		return fmt.Errorf("santec: unknown power unit %q", u)
	}
	t.Lock()
	defer t.Unlock()
	return t.write(":POW:UNIT " + u.code())
}

// GetPowerUnit returns the unit the instrument is using for power
func (t *TSL510) GetPowerUnit() (PowerUnit, error) {
	t.Lock()
	defer t.Unlock()
	return t.powerUnit()
}

func (t *TSL510) powerUnit() (PowerUnit, error) {
	mw, err := t.queryFlag(":POW:UNIT?")
	if err != nil {
		return "", err
	}
	if mw {
		return MW, nil
	}
	return DBm, nil
}

// SetWavelengthUnit changes the unit of the wavelength field
func (t *TSL510) SetWavelengthUnit(u WavelengthUnit) error {
	if u != Nanometer && u != THz {
		return fmt.Errorf("santec: unknown wavelength unit %q", u)
	}
	t.Lock()
	defer t.Unlock()
	return t.write(":WAV:UNIT " + u.code())
}

// GetWavelengthUnit returns the unit of the wavelength field
func (t *TSL510) GetWavelengthUnit() (WavelengthUnit, error) {
	t.Lock()
	defer t.Unlock()
	return t.wavelengthUnit()
}

func (t *TSL510) wavelengthUnit() (WavelengthUnit, error) {
	thz, err := t.queryFlag(":WAV:UNIT?")
	if err != nil {
		return "", err
	}
	if thz {
		return THz, nil
	}
	return Nanometer, nil
}

// SetWavelength sets the wavelength in nm, converting to THz if that is
// the unit the instrument is in
func (t *TSL510) SetWavelength(nm float64) error {
	if err := checkLimit("wavelength", nm, t.Limits().Wavelength, string(Nanometer)); err != nil {
		return err
	}
	t.Lock()
	defer t.Unlock()
	u, err := t.wavelengthUnit()
	if err != nil {
		return err
	}
	return t.write(":WAV " + fmtFloat(convertWavelength(nm, Nanometer, u)))
}

// GetWavelength returns the wavelength in nm
func (t *TSL510) GetWavelength() (float64, error) {
	t.Lock()
	defer t.Unlock()
	u, err := t.wavelengthUnit()
	if err != nil {
		return 0, err
	}
	v, err := t.queryFloat(":WAV?")
	if err != nil {
		return 0, err
	}
	return convertWavelength(v, u, Nanometer), nil
}

// SetColor writes v to the wavelength field without conversion, in
// whatever unit the instrument is currently in
func (t *TSL510) SetColor(v float64) error {
	t.Lock()
	defer t.Unlock()
	// a value that is out of range in either unit is rejected without
	// asking the instrument which unit it is in
	nmErr := checkLimit("wavelength", v, t.limits.Wavelength, string(Nanometer))
	if nmErr != nil && checkLimit("wavelength", THzToNanometer(v), t.limits.Wavelength, string(Nanometer)) != nil {
		return nmErr
	}
	u, err := t.wavelengthUnit()
	if err != nil {
		return err
	}
	if err = checkLimit("wavelength", convertWavelength(v, u, Nanometer), t.limits.Wavelength, string(Nanometer)); err != nil {
		return err
	}
	return t.write(":WAV " + fmtFloat(v))
}

// SetPower sets the output power setpoint.  value is in unit, and is
// converted to the unit the instrument is in before sending.
func (t *TSL510) SetPower(value float64, unit PowerUnit) error {
	if unit != DBm && unit != MW {
		return fmt.Errorf("santec: unknown power unit %q", unit)
	}
	dbm := convertPower(value, unit, DBm)
	if err := checkLimit("power", dbm, t.Limits().Power, string(DBm)); err != nil {
		return err
	}
	t.Lock()
	defer t.Unlock()
	inst, err := t.powerUnit()
	if err != nil {
		return err
	}
	return t.write(":POW " + fmtFloat(convertPower(value, unit, inst)))
}

// GetPower returns the power setpoint in unit
func (t *TSL510) GetPower(unit PowerUnit) (float64, error) {
	return t.readPower(":POW?", unit)
}

// GetPowerTrue returns the measured output power in unit
func (t *TSL510) GetPowerTrue(unit PowerUnit) (float64, error) {
	return t.readPower(":POW:ACT?", unit)
}

func (t *TSL510) readPower(cmd string, unit PowerUnit) (float64, error) {
	if unit != DBm && unit != MW {
		return 0, fmt.Errorf("santec: unknown power unit %q", unit)
	}
	t.Lock()
	defer t.Unlock()
	inst, err := t.powerUnit()
	if err != nil {
		return 0, err
	}
	v, err := t.queryFloat(cmd)
	if err != nil {
		return 0, err
	}
	return convertPower(v, inst, unit), nil
}

// RangePower returns the settable power range in dBm
func (t *TSL510) RangePower() (util.Limiter, error) {
	t.Lock()
	defer t.Unlock()
	return t.rangePair(":POW:LEV:MIN?", ":POW:LEV:MAX?")
}

// RangeWavelength returns the settable wavelength range in nm
func (t *TSL510) RangeWavelength() (util.Limiter, error) {
	t.Lock()
	defer t.Unlock()
	return t.rangePair(":WAV:MIN?", ":WAV:MAX?")
}

func (t *TSL510) rangePair(minCmd, maxCmd string) (util.Limiter, error) {
	var l util.Limiter
	var err error
	if l.Min, err = t.queryFloat(minCmd); err != nil {
		return l, err
	}
	l.Max, err = t.queryFloat(maxCmd)
	return l, err
}

// RefreshLimits replaces the configured limits with those reported by the
// instrument
func (t *TSL510) RefreshLimits() (Limits, error) {
	var l Limits
	var err error
	if l.Power, err = t.RangePower(); err != nil {
		return l, err
	}
	if l.Wavelength, err = t.RangeWavelength(); err != nil {
		return l, err
	}
	t.Lock()
	t.limits = l
	t.Unlock()
	return l, nil
}

// Status reads the flags of the instrument
func (t *TSL510) Status() (Status, error) {
	t.Lock()
	defer t.Unlock()
	var (
		s   Status
		err error
	)
	if s.Emission, err = t.queryFlag(":POW:STAT?"); err != nil {
		return s, err
	}
	if s.AutoAttenuation, err = t.queryFlag(":POW:ATT:AUT?"); err != nil {
		return s, err
	}
	if s.ShutterClosed, err = t.queryFlag(":POW:SHUT?"); err != nil {
		return s, err
	}
	if s.PowerUnit, err = t.powerUnit(); err != nil {
		return s, err
	}
	s.WavelengthUnit, err = t.wavelengthUnit()
	return s, err
}

func checkLimit(param string, v float64, l util.Limiter, unit string) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &OutOfRangeError{Parameter: param, Value: v, Min: l.Min, Max: l.Max, Unit: unit}
	}
	if l.Zero() || l.Check(v) {
		return nil
	}
	return &OutOfRangeError{Parameter: param, Value: v, Min: l.Min, Max: l.Max, Unit: unit}
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
