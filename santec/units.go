package santec

import (
	"fmt"
	"math"
	"strings"
)

// SpeedOfLight in nm*THz, so that f[THz] = SpeedOfLight / lambda[nm]
const SpeedOfLight = 299792.458

// PowerUnit is the unit of optical power
type PowerUnit string

const (
	// DBm is decibels relative to one milliwatt
	DBm PowerUnit = "dBm"

	// MW is milliwatts
	MW PowerUnit = "mW"
)

// code is the number the instrument uses for the unit in :POW:UNIT
func (u PowerUnit) code() string {
	if u == MW {
		return "1"
	}
	return "0"
}

// ParsePowerUnit converts dBm or mW, in any case, to a PowerUnit
func ParsePowerUnit(s string) (PowerUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dbm":
		return DBm, nil
	case "mw":
		return MW, nil
	}
	return "", fmt.Errorf("santec: unknown power unit %q, must be dBm or mW", s)
}

// WavelengthUnit is the unit of the wavelength field
type WavelengthUnit string

const (
	// Nanometer is wavelength in nm
	Nanometer WavelengthUnit = "nm"

	// THz is optical frequency in terahertz
	THz WavelengthUnit = "THz"
)

func (u WavelengthUnit) code() string {
	if u == THz {
		return "1"
	}
	return "0"
}

// ParseWavelengthUnit converts nm or THz, in any case, to a WavelengthUnit
func ParseWavelengthUnit(s string) (WavelengthUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nm":
		return Nanometer, nil
	case "thz":
		return THz, nil
	}
	return "", fmt.Errorf("santec: unknown wavelength unit %q, must be nm or THz", s)
}

// DBmToMilliwatt converts dBm to mW
func DBmToMilliwatt(dbm float64) float64 {
	return math.Pow(10, dbm/10)
}

// MilliwattToDBm converts mW to dBm.  Zero and negative powers have no
// logarithm and return -Inf and NaN respectively.
func MilliwattToDBm(mw float64) float64 {
	return 10 * math.Log10(mw)
}

// NanometerToTHz converts a vacuum wavelength to optical frequency
func NanometerToTHz(nm float64) float64 {
	return SpeedOfLight / nm
}

// THzToNanometer converts optical frequency to vacuum wavelength
func THzToNanometer(thz float64) float64 {
	return SpeedOfLight / thz
}

// convertPower converts v from one unit to another
func convertPower(v float64, from, to PowerUnit) float64 {
	if from == to {
		return v
	}
	if to == MW {
		return DBmToMilliwatt(v)
	}
	return MilliwattToDBm(v)
}

// convertWavelength converts v from one unit to another; the transform is
// its own inverse
func convertWavelength(v float64, from, to WavelengthUnit) float64 {
	if from == to {
		return v
	}
	return SpeedOfLight / v
}
