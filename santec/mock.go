package santec

import (
	"errors"
	"strconv"
	"strings"
	"sync"
)

// ErrNoResponse is returned by Mock.ReadLine when nothing has been queried
var ErrNoResponse = errors.New("santec: mock has no pending response")

// Mock is an in-memory TSL-510.  It implements LineConn and keeps its
// state in dBm and nm regardless of the display units, like the instrument.
// When emission is on the measured power equals the setpoint, otherwise it
// is the floor of the power meter.
type Mock struct {
	sync.Mutex

	// IDN is the response to *IDN?
	IDN string

	// Sent is every line written, in order
	Sent []string

	// Override maps a query to a canned response, for fault injection
	Override map[string]string

	Emission        bool
	AutoAttenuation bool
	ShutterClosed   bool
	PowerUnit       PowerUnit
	WavelengthUnit  WavelengthUnit

	// Wavelength in nm and Power in dBm
	Wavelength float64
	Power      float64

	Limits Limits

	pending []string
}

// NewMock returns a mock at 1550 nm and 0 dBm with emission off
func NewMock() *Mock {
	return &Mock{
		IDN:             "SANTEC,TSL-510,00000000,0001.0000",
		Override:        map[string]string{},
		AutoAttenuation: true,
		PowerUnit:       DBm,
		WavelengthUnit:  Nanometer,
		Wavelength:      1550,
		Power:           0,
		Limits:          DefaultLimits,
	}
}

// powerFloor is reported by :POW:ACT? when emission is off, in dBm
const powerFloor = -60.

// WriteLine satisfies LineConn
func (m *Mock) WriteLine(s string) error {
	m.Lock()
	defer m.Unlock()
	m.Sent = append(m.Sent, s)
	cmd, arg := s, ""
	if i := strings.IndexByte(s, ' '); i >= 0 {
		cmd, arg = s[:i], strings.TrimSpace(s[i+1:])
	}
	if resp, ok := m.Override[cmd]; ok {
		m.pending = append(m.pending, resp)
		return nil
	}
	if strings.HasSuffix(cmd, "?") {
		m.pending = append(m.pending, m.answer(cmd))
		return nil
	}
	m.set(cmd, arg)
	return nil
}

// ReadLine satisfies LineConn
func (m *Mock) ReadLine() (string, error) {
	m.Lock()
	defer m.Unlock()
	if len(m.pending) == 0 {
		return "", ErrNoResponse
	}
	resp := m.pending[0]
	m.pending = m.pending[1:]
	return resp, nil
}

func (m *Mock) answer(cmd string) string {
	switch cmd {
	case "*IDN?":
		return m.IDN
	case ":POW:STAT?":
		return flag(m.Emission)
	case ":POW:ATT:AUT?":
		return flag(m.AutoAttenuation)
	case ":POW:SHUT?":
		return flag(m.ShutterClosed)
	case ":POW:UNIT?":
		return m.PowerUnit.code()
	case ":WAV:UNIT?":
		return m.WavelengthUnit.code()
	case ":WAV?":
		return fmtFloat(convertWavelength(m.Wavelength, Nanometer, m.WavelengthUnit))
	case ":POW?":
		return fmtFloat(convertPower(m.Power, DBm, m.PowerUnit))
	case ":POW:ACT?":
		p := powerFloor
		if m.Emission && !m.ShutterClosed {
			p = m.Power
		}
		return fmtFloat(convertPower(p, DBm, m.PowerUnit))
	case ":POW:LEV:MIN?":
		return fmtFloat(m.Limits.Power.Min)
	case ":POW:LEV:MAX?":
		return fmtFloat(m.Limits.Power.Max)
	case ":WAV:MIN?":
		return fmtFloat(m.Limits.Wavelength.Min)
	case ":WAV:MAX?":
		return fmtFloat(m.Limits.Wavelength.Max)
	}
	return "ERROR"
}

func (m *Mock) set(cmd, arg string) {
	f, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return
	}
	switch cmd {
	case ":POW:STAT":
		m.Emission = f == 1
	case ":POW:UNIT":
		m.PowerUnit = DBm
		if f == 1 {
			m.PowerUnit = MW
		}
	case ":WAV:UNIT":
		m.WavelengthUnit = Nanometer
		if f == 1 {
			m.WavelengthUnit = THz
		}
	case ":WAV":
		m.Wavelength = convertWavelength(f, m.WavelengthUnit, Nanometer)
	case ":POW":
		m.Power = convertPower(f, m.PowerUnit, DBm)
	}
}

// LastSent returns the most recent line written, or "" if none
func (m *Mock) LastSent() string {
	m.Lock()
	defer m.Unlock()
	if len(m.Sent) == 0 {
		return ""
	}
	return m.Sent[len(m.Sent)-1]
}
