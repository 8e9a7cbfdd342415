package daq_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/nasa-jpl/cavitytune/generichttp/daq"
	"github.com/nasa-jpl/cavitytune/server"
	"github.com/nasa-jpl/cavitytune/ti"
)

func setup(t *testing.T) (chi.Router, *ti.DAC8568, *spitest.Record) {
	t.Helper()
	rec := &spitest.Record{}
	d, err := ti.NewSPI(rec, ti.DefaultSPIConfig, ti.DefaultCalibration)
	if err != nil {
		t.Fatal(err)
	}
	r := chi.NewRouter()
	daq.NewHTTPDAC(d).RT().Bind(r)
	return r, d, rec
}

func do(r chi.Router, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestAllRoutesBound(t *testing.T) {
	rec := &spitest.Record{}
	d, err := ti.NewSPI(rec, ti.DefaultSPIConfig, ti.DefaultCalibration)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"GET /power/{channel}",
		"GET /voltage/{channel}",
		"POST /buffer",
		"POST /buffer-dn-16",
		"POST /clear",
		"POST /output",
		"POST /output-dn-16",
		"POST /output-multi",
		"POST /output-multi-dn-16",
		"POST /power",
		"POST /reset",
		"POST /update",
	}
	if diff := cmp.Diff(want, daq.NewHTTPDAC(d).RT().Endpoints()); diff != "" {
		t.Errorf("endpoints mismatch (-want +got):\n%s", diff)
	}
}

func TestOutputAndReadback(t *testing.T) {
	r, _, rec := setup(t)
	if w := do(r, http.MethodPost, "/output", `{"channel":2,"voltage":2.5}`); w.Code != http.StatusOK {
		t.Fatalf("POST /output: %d %s", w.Code, w.Body)
	}
	if len(rec.Ops) != 1 {
		t.Fatalf("expected one frame, got %d", len(rec.Ops))
	}
	w := do(r, http.MethodGet, "/voltage/2", "")
	var f server.FloatT
	if err := json.NewDecoder(w.Body).Decode(&f); err != nil {
		t.Fatal(err)
	}
	if f.F64 < 2.4999 || f.F64 > 2.5001 {
		t.Errorf("expected 2.5 V readback, got %v", f.F64)
	}
	if w := do(r, http.MethodGet, "/voltage/5", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("expected an unwritten channel to fail, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/voltage/x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected a bad channel to be rejected, got %d", w.Code)
	}
}

func TestOutOfRangeRejected(t *testing.T) {
	r, _, rec := setup(t)
	if w := do(r, http.MethodPost, "/output", `{"channel":0,"voltage":7}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 7 V to be rejected, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/output-multi", `{"channel":[0,1],"voltage":[1,9]}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 9 V to be rejected, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/output-dn-16", `{"channel":9,"dn":1}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected channel 9 to be rejected, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/voltage/9", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected readback of channel 9 to be rejected, got %d", w.Code)
	}
	if len(rec.Ops) != 0 {
		t.Errorf("expected no bus traffic, got %d frames", len(rec.Ops))
	}
}

func TestBufferThenUpdate(t *testing.T) {
	r, d, rec := setup(t)
	for _, body := range []string{`{"channel":0,"dn":100}`, `{"channel":1,"dn":200}`} {
		if w := do(r, http.MethodPost, "/buffer-dn-16", body); w.Code != http.StatusOK {
			t.Fatalf("POST /buffer-dn-16: %d %s", w.Code, w.Body)
		}
	}
	if _, err := d.CurrentCode(ti.ChannelA); err == nil {
		t.Error("a buffered write should not be applied before update")
	}
	if w := do(r, http.MethodPost, "/update", ""); w.Code != http.StatusOK {
		t.Fatalf("POST /update: %d %s", w.Code, w.Body)
	}
	if len(rec.Ops) != 3 {
		t.Errorf("expected three frames, got %d", len(rec.Ops))
	}
	if c, err := d.CurrentCode(ti.ChannelB); err != nil || c != 200 {
		t.Errorf("expected channel B at 200, got %d %v", c, err)
	}
}

func TestClearResetPower(t *testing.T) {
	r, d, _ := setup(t)
	if w := do(r, http.MethodPost, "/clear", `{"str":"mid"}`); w.Code != http.StatusOK {
		t.Fatalf("POST /clear: %d %s", w.Code, w.Body)
	}
	if c, _ := d.CurrentCode(ti.ChannelH); c != ti.MidScale {
		t.Errorf("expected mid scale after clear, got %#x", c)
	}
	if w := do(r, http.MethodPost, "/clear", `{"str":"sideways"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected an unknown clear level to fail, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/power", `{"channel":3,"on":true}`); w.Code != http.StatusOK {
		t.Fatalf("POST /power: %d %s", w.Code, w.Body)
	}
	w := do(r, http.MethodGet, "/power/3", "")
	var b server.BoolT
	if err := json.NewDecoder(w.Body).Decode(&b); err != nil {
		t.Fatal(err)
	}
	if !b.Bool {
		t.Error("expected channel 3 powered")
	}
	if w := do(r, http.MethodPost, "/reset", ""); w.Code != http.StatusOK {
		t.Fatalf("POST /reset: %d %s", w.Code, w.Body)
	}
	if d.Powered(ti.ChannelD) {
		t.Error("expected reset to power channels down")
	}
}

func TestReadWaveformCSV(t *testing.T) {
	in := "0,3\n0.5,1\n1.0,1.5\n"
	got, err := daq.ReadWaveformCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []daq.Waveform{
		{Channel: 0, Volts: []float64{0.5, 1.0}},
		{Channel: 3, Volts: []float64{1, 1.5}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("waveform mismatch (-want +got):\n%s", diff)
	}
	if _, err = daq.ReadWaveformCSV(strings.NewReader("a,b\n")); err == nil {
		t.Error("expected an error for a non numeric header")
	}
}
