package santec

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/cavitytune/generichttp/laser"
	"github.com/nasa-jpl/cavitytune/server"
)

func TestHTTPWrapper(t *testing.T) {
	tsl, m := newMocked()
	w := NewHTTPWrapper(tsl, MW)
	r := chi.NewRouter()
	w.RT().Bind(r)
	post := func(path, body string) int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
		return rec.Code
	}
	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	if code := post("/emission", `{"bool":true}`); code != http.StatusOK || !m.Emission {
		t.Errorf("POST /emission: %d, emission %v", code, m.Emission)
	}
	if code := post("/power", `{"f64":2}`); code != http.StatusOK {
		t.Errorf("POST /power: %d", code)
	}
	if !approx(m.Power, MilliwattToDBm(2), 1e-9) {
		t.Errorf("expected the mock at 2 mW, got %v dBm", m.Power)
	}
	if code := post("/wvl", `{"f64":1700}`); code != http.StatusInternalServerError {
		t.Errorf("expected an out of range wavelength to fail, got %d", code)
	}

	var f server.FloatT
	if err := json.NewDecoder(get("/power/actual").Body).Decode(&f); err != nil {
		t.Fatal(err)
	}
	if !approx(f.F64, 2, 1e-9) {
		t.Errorf("expected 2 mW measured, got %v", f.F64)
	}

	st := map[string]bool{}
	if err := json.NewDecoder(get("/status").Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if !st["emission"] {
		t.Errorf("expected emission in status, got %v", st)
	}

	if code := post("/ld-off", ``); code != http.StatusOK || m.Emission {
		t.Errorf("POST /ld-off: %d, emission %v", code, m.Emission)
	}
	if code := post("/wvl/unit", `{"str":"THz"}`); code != http.StatusOK || m.WavelengthUnit != THz {
		t.Errorf("POST /wvl/unit: %d, unit %v", code, m.WavelengthUnit)
	}
	if code := post("/limits/refresh", ``); code != http.StatusOK {
		t.Errorf("POST /limits/refresh: %d", code)
	}
}

func TestPowerRangeInHTTPUnit(t *testing.T) {
	tsl, _ := newMocked()
	tests := []struct {
		unit     PowerUnit
		min, max float64
	}{
		{DBm, -20, 10},
		{MW, 0.01, 10},
	}
	for _, tt := range tests {
		rng, err := HTTPAdapter{T: tsl, Unit: tt.unit}.GetPowerRange()
		if err != nil {
			t.Fatal(err)
		}
		if !approx(rng.Min, tt.min, 1e-9) || !approx(rng.Max, tt.max, 1e-9) {
			t.Errorf("%s: expected %v-%v, got %+v", tt.unit, tt.min, tt.max, rng)
		}
	}

	r := chi.NewRouter()
	NewHTTPWrapper(tsl, MW).RT().Bind(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/power/range", nil))
	var rng laser.Range
	if err := json.NewDecoder(rec.Body).Decode(&rng); err != nil {
		t.Fatal(err)
	}
	if !approx(rng.Max, 10, 1e-9) {
		t.Errorf("GET /power/range: expected a 10 mW maximum, got %+v", rng)
	}
}
