package main

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/cavitytune/generichttp/daq"
)

func TestSineSpansUnitInterval(t *testing.T) {
	y := sine(1000)
	if len(y) != 1000 {
		t.Fatalf("expected 1000 samples, got %d", len(y))
	}
	if math.Abs(y[0]-0.5) > 1e-12 || math.Abs(y[250]-1) > 1e-12 || math.Abs(y[750]) > 1e-12 {
		t.Errorf("unexpected samples %v %v %v", y[0], y[250], y[750])
	}
	for i, v := range y {
		if v < 0 || v > 1 {
			t.Fatalf("sample %d = %v outside [0, 1]", i, v)
		}
	}
}

func TestFrames(t *testing.T) {
	chans, rows, err := frames([]daq.Waveform{
		{Channel: 2, Volts: []float64{0, 1, 2}},
		{Channel: 5, Volts: []float64{3, 4, 5}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{2, 5}, chans); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}
	want := [][]float64{{0, 3}, {1, 4}, {2, 5}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if _, _, err = frames([]daq.Waveform{{Channel: 0, Volts: []float64{1}}, {Channel: 1}}); err == nil {
		t.Error("expected an error for ragged columns")
	}
}
