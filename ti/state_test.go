package ti

import (
	"errors"
	"testing"
)

func TestPendingIsNotApplied(t *testing.T) {
	s := NewChannelState(DefaultCalibration)
	s.SetPending(ChannelA, 100)
	if _, err := s.CurrentCode(ChannelA); err == nil {
		t.Fatal("expected a pending write to leave the output unknown")
	}
	if p, ok := s.Pending(ChannelA); !ok || p != 100 {
		t.Errorf("expected pending 100, got %d %v", p, ok)
	}
	s.ConfirmApplied(ChannelA)
	if c, err := s.CurrentCode(ChannelA); err != nil || c != 100 {
		t.Errorf("expected 100 after confirm, got %d %v", c, err)
	}
	if _, ok := s.Pending(ChannelA); ok {
		t.Error("expected pending cleared by confirm")
	}
}

func TestConfirmAllSkipsUnwritten(t *testing.T) {
	s := NewChannelState(DefaultCalibration)
	s.SetPending(ChannelB, 1)
	s.ConfirmAll()
	var uerr *UnknownStateError
	if _, err := s.CurrentVoltage(ChannelA); !errors.As(err, &uerr) {
		t.Errorf("expected channel A unknown, got %v", err)
	}
	if uerr != nil && uerr.Channel != ChannelA {
		t.Errorf("expected the error to name channel A, got %s", uerr.Channel)
	}
	if _, err := s.CurrentVoltage(ChannelB); err != nil {
		t.Error(err)
	}
}

func TestReadbackOfBroadcastRejected(t *testing.T) {
	s := NewChannelState(DefaultCalibration)
	s.SetAllApplied(5)
	var verr *ValidationError
	if _, err := s.CurrentCode(AllChannels); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError reading back AllChannels, got %v", err)
	}
}

func TestCalibrationRoundTrip(t *testing.T) {
	cal := Calibration{ReferenceVolts: 2.5, Gain: 1}
	for _, code := range []uint16{0, 1, 12345, MidScale, FullScale} {
		back, err := cal.Code(cal.Voltage(code))
		if err != nil {
			t.Fatal(err)
		}
		if back != code {
			t.Errorf("expected code %d to survive a trip through volts, got %d", code, back)
		}
	}
	if cal.FullScaleVolts() != 2.5 {
		t.Errorf("expected 2.5 V full scale, got %f", cal.FullScaleVolts())
	}
}
