// Package laser exposes control of laser controllers over HTTP
package laser

import (
	"net/http"

	"github.com/nasa-jpl/cavitytune/generichttp"
	"github.com/nasa-jpl/cavitytune/server"
)

// Range is the settable span of a quantity
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Controller is a basic interface for laser controllers
type Controller interface {
	// SetEmission turns emission on or off
	SetEmission(bool) error

	// GetEmission queries if the laser is currently outputting
	GetEmission() (bool, error)
}

// SetEmission configures the output state of the laser
func SetEmission(c Controller) http.HandlerFunc {
	return generichttp.SetBool(c.SetEmission)
}

// GetEmission queries the output state of the laser
func GetEmission(c Controller) http.HandlerFunc {
	return generichttp.GetBool(c.GetEmission)
}

// PowerController can control its output power
type PowerController interface {
	// SetPower sets the output power level of the the device
	SetPower(float64) error

	// GetPower retrieves the output power level of the device
	GetPower() (float64, error)
}

// SetPower configures the output power of the laser
func SetPower(c PowerController) http.HandlerFunc {
	return generichttp.SetFloat(c.SetPower)
}

// GetPower queries the output power of the laser
func GetPower(c PowerController) http.HandlerFunc {
	return generichttp.GetFloat(c.GetPower)
}

// PowerMeter can measure its actual output power, as opposed to the setpoint
type PowerMeter interface {
	GetMeasuredPower() (float64, error)
}

// GetMeasuredPower queries the measured output power of the laser
func GetMeasuredPower(c PowerMeter) http.HandlerFunc {
	return generichttp.GetFloat(c.GetMeasuredPower)
}

// PowerUnitController can change the unit it works in
type PowerUnitController interface {
	SetPowerUnit(string) error
	GetPowerUnit() (string, error)
}

// WavelengthController is a tunable laser
type WavelengthController interface {
	// SetWavelength sets the wavelength in nm
	SetWavelength(float64) error

	// GetWavelength returns the wavelength in nm
	GetWavelength() (float64, error)
}

// SetWavelength configures the output wavelength of the laser
func SetWavelength(c WavelengthController) http.HandlerFunc {
	return generichttp.SetFloat(c.SetWavelength)
}

// GetWavelength queries the output wavelength of the laser
func GetWavelength(c WavelengthController) http.HandlerFunc {
	return generichttp.GetFloat(c.GetWavelength)
}

// RangeReporter can report the settable ranges of power and wavelength
type RangeReporter interface {
	GetPowerRange() (Range, error)
	GetWavelengthRange() (Range, error)
}

// GetRange returns a handler which replies with a Range as JSON
func GetRange(fcn func() (Range, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rng, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		server.RespondJSON(w, rng)
	}
}

// StatusReporter can summarize its state as a set of flags
type StatusReporter interface {
	Status() (map[string]bool, error)
}

// GetStatus replies with the status flags as a JSON object
func GetStatus(c StatusReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := c.Status()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		server.RespondJSON(w, m)
	}
}

// Identifier can report its identity
type Identifier interface {
	Identify() (string, error)
}

// HTTPLaserController wraps a LaserController in an HTTP route table
type HTTPLaserController struct {
	// Ctl is the underlying laser controller
	Ctl Controller

	// RouteTable maps URLs to functions
	RouteTable generichttp.RouteTable
}

// NewHTTPLaserController returns a new HTTP wrapper around an existing laser controller
func NewHTTPLaserController(ctl Controller) HTTPLaserController {
	h := HTTPLaserController{Ctl: ctl}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/emission"}:  GetEmission(ctl),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/emission"}: SetEmission(ctl),
	}
	if powerctl, ok := interface{}(ctl).(PowerController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/power"}] = GetPower(powerctl)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/power"}] = SetPower(powerctl)
	}
	if meter, ok := interface{}(ctl).(PowerMeter); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/power/actual"}] = GetMeasuredPower(meter)
	}
	if unitctl, ok := interface{}(ctl).(PowerUnitController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/power/unit"}] = generichttp.GetString(unitctl.GetPowerUnit)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/power/unit"}] = generichttp.SetString(unitctl.SetPowerUnit)
	}
	if wvlctl, ok := interface{}(ctl).(WavelengthController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/wvl"}] = GetWavelength(wvlctl)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/wvl"}] = SetWavelength(wvlctl)
	}
	if rng, ok := interface{}(ctl).(RangeReporter); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/power/range"}] = GetRange(rng.GetPowerRange)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/wvl/range"}] = GetRange(rng.GetWavelengthRange)
	}
	if st, ok := interface{}(ctl).(StatusReporter); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/status"}] = GetStatus(st)
	}
	if id, ok := interface{}(ctl).(Identifier); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/idn"}] = generichttp.GetString(id.Identify)
	}
	h.RouteTable = rt
	return h
}

// RT safisfies the generichttp.HTTPer interface
func (h HTTPLaserController) RT() generichttp.RouteTable {
	return h.RouteTable
}
