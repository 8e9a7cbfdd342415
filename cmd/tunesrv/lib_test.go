package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nasa-jpl/cavitytune/server"
	"github.com/nasa-jpl/cavitytune/ti"
)

const mockYaml = `Addr: ":9000"
Mock: true
DAC:
  Endpoint: cavity/dac
  ReferenceVolts: 2.5
  Gain: 1
  InitOnStart: true
Laser:
  Endpoint: /cavity/laser/
  PowerUnit: mW
  Timeout: 2s
  RefreshLimits: true
  Limits:
    Wavelength:
      Min: 1500
      Max: 1630
    Power:
      Min: -20
      Max: 10
`

func loadMock(t *testing.T) Config {
	t.Helper()
	fn := filepath.Join(t.TempDir(), "tunesrv.yml")
	if err := os.WriteFile(fn, []byte(mockYaml), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadYaml(fn)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestLoadYaml(t *testing.T) {
	c := loadMock(t)
	if c.Addr != ":9000" || !c.Mock || c.DAC.Gain != 1 || c.Laser.Timeout != 2*time.Second {
		t.Errorf("config not loaded: %+v", c)
	}
	// unset keys keep their defaults
	if c.DAC.SPIHz != 10000000 {
		t.Errorf("expected the default SPI frequency, got %d", c.DAC.SPIHz)
	}
}

func TestMockServer(t *testing.T) {
	c := loadMock(t)
	devs, err := OpenDevices(c)
	if err != nil {
		t.Fatal(err)
	}
	defer devs.Close()
	if !devs.DAC.InternalReferenceEnabled() {
		t.Error("expected InitOnStart to enable the reference")
	}
	mux, err := BuildMux(c, devs)
	if err != nil {
		t.Fatal(err)
	}

	do := func(method, path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
		return w
	}

	if w := do(http.MethodPost, "/cavity/dac/output", `{"channel":1,"voltage":1.25}`); w.Code != http.StatusOK {
		t.Fatalf("POST output: %d %s", w.Code, w.Body)
	}
	if c, err := devs.DAC.CurrentCode(ti.ChannelB); err != nil || c != 0x8000 {
		t.Errorf("expected mid scale on channel B with gain 1, got %#x %v", c, err)
	}

	if w := do(http.MethodPost, "/cavity/laser/emission", `{"bool":true}`); w.Code != http.StatusOK {
		t.Fatalf("POST emission: %d %s", w.Code, w.Body)
	}
	if w := do(http.MethodPost, "/cavity/laser/power", `{"f64":1}`); w.Code != http.StatusOK {
		t.Fatalf("POST power: %d %s", w.Code, w.Body)
	}
	var f server.FloatT
	if err := json.NewDecoder(do(http.MethodGet, "/cavity/laser/power/actual", "").Body).Decode(&f); err != nil {
		t.Fatal(err)
	}
	if f.F64 < 0.999999 || f.F64 > 1.000001 {
		t.Errorf("expected 1 mW measured, got %v", f.F64)
	}

	if w := do(http.MethodPost, "/cavity/dac/lock", `{"bool":true}`); w.Code != http.StatusOK {
		t.Fatalf("POST lock: %d", w.Code)
	}
	if w := do(http.MethodPost, "/cavity/dac/output", `{"channel":1,"voltage":0}`); w.Code != http.StatusLocked {
		t.Errorf("expected a locked DAC to refuse writes, got %d", w.Code)
	}
	if w := do(http.MethodPost, "/cavity/laser/emission", `{"bool":false}`); w.Code != http.StatusOK {
		t.Errorf("the laser has its own lock, got %d", w.Code)
	}

	graph := map[string][]string{}
	if err := json.NewDecoder(do(http.MethodGet, "/endpoints", "").Body).Decode(&graph); err != nil {
		t.Fatal(err)
	}
	if len(graph["/cavity/dac"]) == 0 || len(graph["/cavity/laser"]) == 0 {
		t.Errorf("expected both devices in the endpoint graph, got %v", graph)
	}
}

func TestNoEndpoints(t *testing.T) {
	c := DefaultConfig()
	c.Mock = true
	c.DAC.Endpoint = ""
	c.Laser.Endpoint = ""
	devs, err := OpenDevices(c)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = BuildMux(c, devs); err == nil {
		t.Error("expected an error with nothing to serve")
	}
}

func TestDefaultConfigDrivesHardware(t *testing.T) {
	c := DefaultConfig()
	if c.Mock {
		t.Error("expected the default config to drive real hardware")
	}
	if c.Addr != ":8000" || c.Laser.Addr != "/dev/ttyUSB0" {
		t.Errorf("unexpected defaults %q %q", c.Addr, c.Laser.Addr)
	}
}
