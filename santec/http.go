package santec

import (
	"net/http"

	"github.com/nasa-jpl/cavitytune/generichttp"
	"github.com/nasa-jpl/cavitytune/generichttp/laser"
	"github.com/nasa-jpl/cavitytune/server"
)

// HTTPAdapter presents a TSL510 through the generic laser interfaces.
// Powers are in Unit, wavelengths in nm.
type HTTPAdapter struct {
	T *TSL510

	// Unit is the unit powers are exchanged in over HTTP
	Unit PowerUnit
}

// SetEmission turns the laser diode on or off
func (a HTTPAdapter) SetEmission(b bool) error { return a.T.SetEmission(b) }

// GetEmission returns true if the laser diode is on
func (a HTTPAdapter) GetEmission() (bool, error) { return a.T.GetEmission() }

// SetPower sets the power setpoint
func (a HTTPAdapter) SetPower(f float64) error { return a.T.SetPower(f, a.unit()) }

// GetPower returns the power setpoint
func (a HTTPAdapter) GetPower() (float64, error) { return a.T.GetPower(a.unit()) }

// GetMeasuredPower returns the measured output power
func (a HTTPAdapter) GetMeasuredPower() (float64, error) { return a.T.GetPowerTrue(a.unit()) }

// SetWavelength sets the wavelength in nm
func (a HTTPAdapter) SetWavelength(nm float64) error { return a.T.SetWavelength(nm) }

// GetWavelength returns the wavelength in nm
func (a HTTPAdapter) GetWavelength() (float64, error) { return a.T.GetWavelength() }

// Identify returns the *IDN? string
func (a HTTPAdapter) Identify() (string, error) { return a.T.Identify() }

// SetPowerUnit changes the display unit of the instrument
func (a HTTPAdapter) SetPowerUnit(s string) error {
	u, err := ParsePowerUnit(s)
	if err != nil {
		return err
	}
	return a.T.SetPowerUnit(u)
}

// GetPowerUnit returns the display unit of the instrument
func (a HTTPAdapter) GetPowerUnit() (string, error) {
	u, err := a.T.GetPowerUnit()
	return string(u), err
}

// GetPowerRange returns the power limits in Unit.  Unenforced limits are
// reported as zero.
func (a HTTPAdapter) GetPowerRange() (laser.Range, error) {
	l := a.T.Limits().Power
	if l.Zero() {
		return laser.Range{}, nil
	}
	u := a.unit()
	return laser.Range{Min: convertPower(l.Min, DBm, u), Max: convertPower(l.Max, DBm, u)}, nil
}

// GetWavelengthRange returns the wavelength limits in nm
func (a HTTPAdapter) GetWavelengthRange() (laser.Range, error) {
	l := a.T.Limits().Wavelength
	return laser.Range{Min: l.Min, Max: l.Max}, nil
}

// Status returns the flags of the instrument
func (a HTTPAdapter) Status() (map[string]bool, error) {
	s, err := a.T.Status()
	if err != nil {
		return nil, err
	}
	return s.Map(), nil
}

func (a HTTPAdapter) unit() PowerUnit {
	if a.Unit == "" {
		return DBm
	}
	return a.Unit
}

// HTTPWrapper provides HTTP bindings on top of the generic laser interface
type HTTPWrapper struct {
	laser.HTTPLaserController
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table pre-configured
func NewHTTPWrapper(t *TSL510, unit PowerUnit) HTTPWrapper {
	a := HTTPAdapter{T: t, Unit: unit}
	w := HTTPWrapper{laser.NewHTTPLaserController(a)}
	rt := w.RT()
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/wvl/unit"}] = generichttp.GetString(func() (string, error) {
		u, err := t.GetWavelengthUnit()
		return string(u), err
	})
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/wvl/unit"}] = generichttp.SetString(func(s string) error {
		u, err := ParseWavelengthUnit(s)
		if err != nil {
			return err
		}
		return t.SetWavelengthUnit(u)
	})
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/wvl/raw"}] = generichttp.SetFloat(t.SetColor)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/ld-off"}] = generichttp.Do(t.LDOff)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/limits/refresh"}] = w.refreshLimits(t)
	return w
}

func (w HTTPWrapper) refreshLimits(t *TSL510) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		l, err := t.RefreshLimits()
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		server.RespondJSON(rw, map[string]laser.Range{
			"power": {Min: l.Power.Min, Max: l.Power.Max},
			"wvl":   {Min: l.Wavelength.Min, Max: l.Wavelength.Max},
		})
	}
}
