package ti

import (
	"math"
)

const (
	// FullScale is the largest DAC code
	FullScale = 0xFFFF

	// MidScale is the code loaded by a clear to mid scale
	MidScale = 0x8000
)

// Calibration holds the constants of the code to volts transform,
// V = code / FullScale * ReferenceVolts * Gain
type Calibration struct {
	// ReferenceVolts is the reference voltage, 2.5 for the internal reference
	ReferenceVolts float64 `yaml:"ReferenceVolts"`

	// Gain is the output amplifier gain, 2 on the DAC8568A/C and 1 on other grades
	Gain float64 `yaml:"Gain"`
}

// DefaultCalibration is the internal 2.5 V reference and a gain of two
var DefaultCalibration = Calibration{ReferenceVolts: 2.5, Gain: 2}

// FullScaleVolts is the output voltage at FullScale
func (c Calibration) FullScaleVolts() float64 {
	return c.ReferenceVolts * c.Gain
}

func (c Calibration) validate() error {
	if !(c.ReferenceVolts > 0) {
		return &ValidationError{Field: "reference voltage", Value: c.ReferenceVolts, Reason: "must be positive"}
	}
	if !(c.Gain > 0) {
		return &ValidationError{Field: "gain", Value: c.Gain, Reason: "must be positive"}
	}
	return nil
}

// Voltage converts a code to volts
func (c Calibration) Voltage(code uint16) float64 {
	return float64(code) / FullScale * c.FullScaleVolts()
}

// Code converts volts to the nearest code.  Voltages outside
// [0, FullScaleVolts] are rejected.
func (c Calibration) Code(volts float64) (uint16, error) {
	fs := c.FullScaleVolts()
	if math.IsNaN(volts) || volts < 0 || volts > fs {
		return 0, &ValidationError{Field: "voltage", Value: volts, Reason: "outside 0 to full scale"}
	}
	return uint16(math.Round(volts / fs * FullScale)), nil
}

// channelRecord is the two phase register model of one output.
// pending is the input register, code is the output register.
type channelRecord struct {
	pending    uint16
	hasPending bool
	code       uint16
	known      bool
	powered    bool
}

// ChannelState is the bookkeeping for the eight outputs.  It does no I/O
// and is not safe for concurrent use; the DAC8568 guards it with its mutex.
type ChannelState struct {
	cal Calibration
	ch  [NumChannels]channelRecord
}

// NewChannelState returns a state with every channel unknown
func NewChannelState(cal Calibration) *ChannelState {
	return &ChannelState{cal: cal}
}

// Calibration returns the transform used for voltages
func (s *ChannelState) Calibration() Calibration {
	return s.cal
}

// each calls fcn on every channel ch names, AllChannels meaning all eight
func (s *ChannelState) each(ch Channel, fcn func(*channelRecord)) {
	if ch == AllChannels {
		for i := range s.ch {
			fcn(&s.ch[i])
		}
		return
	}
	if ch < NumChannels {
		fcn(&s.ch[ch])
	}
}

// SetPending records a write to the input register of ch
func (s *ChannelState) SetPending(ch Channel, code uint16) {
	s.each(ch, func(r *channelRecord) {
		r.pending = code
		r.hasPending = true
	})
}

// ConfirmApplied moves the pending value of ch to its output.
// Channels without a pending value are unchanged.
func (s *ChannelState) ConfirmApplied(ch Channel) {
	s.each(ch, func(r *channelRecord) {
		if r.hasPending {
			r.code = r.pending
			r.known = true
			r.hasPending = false
		}
	})
}

// ConfirmAll is ConfirmApplied(AllChannels)
func (s *ChannelState) ConfirmAll() {
	s.ConfirmApplied(AllChannels)
}

// SetApplied records a code that went straight to the output of ch.
// The input register holds the same value afterwards.
func (s *ChannelState) SetApplied(ch Channel, code uint16) {
	s.each(ch, func(r *channelRecord) {
		r.code = code
		r.known = true
		r.pending = code
		r.hasPending = false
	})
}

// SetAllApplied is SetApplied(AllChannels, code)
func (s *ChannelState) SetAllApplied(code uint16) {
	s.SetApplied(AllChannels, code)
}

// SetPowered records the power state of ch
func (s *ChannelState) SetPowered(ch Channel, powered bool) {
	s.each(ch, func(r *channelRecord) { r.powered = powered })
}

// Powered returns true if ch has been powered up since the last reset
func (s *ChannelState) Powered(ch Channel) bool {
	if ch >= NumChannels {
		return false
	}
	return s.ch[ch].powered
}

// Pending returns the unapplied input register value of ch, if any
func (s *ChannelState) Pending(ch Channel) (uint16, bool) {
	if ch >= NumChannels {
		return 0, false
	}
	r := s.ch[ch]
	return r.pending, r.hasPending
}

// Reset forgets everything, as after a power on or software reset
func (s *ChannelState) Reset() {
	s.ch = [NumChannels]channelRecord{}
}

// CurrentCode returns the output code of ch
func (s *ChannelState) CurrentCode(ch Channel) (uint16, error) {
	if ch >= NumChannels {
		return 0, &ValidationError{Field: "channel", Value: int(ch), Reason: "readback requires a single channel 0-7"}
	}
	r := s.ch[ch]
	if !r.known {
		return 0, &UnknownStateError{Channel: ch}
	}
	return r.code, nil
}

// CurrentVoltage returns the output voltage of ch
func (s *ChannelState) CurrentVoltage(ch Channel) (float64, error) {
	code, err := s.CurrentCode(ch)
	if err != nil {
		return 0, err
	}
	return s.cal.Voltage(code), nil
}
