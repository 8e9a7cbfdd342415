package generichttp

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"
)

func TestSubMuxSanitize(t *testing.T) {
	for in, want := range map[string]string{
		"omc/laser":    "/omc/laser",
		"/omc/laser/":  "/omc/laser",
		"/omc/laser/*": "/omc/laser",
		"dac":          "/dac",
	} {
		if got := SubMuxSanitize(in); got != want {
			t.Errorf("SubMuxSanitize(%q) = %q, expected %q", in, got, want)
		}
	}
}

func TestRouteTableBindAndEndpoints(t *testing.T) {
	var v float64
	rt := RouteTable{
		MethodPath{http.MethodGet, "/wvl"}:  GetFloat(func() (float64, error) { return v, nil }),
		MethodPath{http.MethodPost, "/wvl"}: SetFloat(func(f float64) error { v = f; return nil }),
		MethodPath{http.MethodPost, "/fail"}: Do(func() error {
			return errors.New("nope")
		}),
	}
	want := []string{"GET /wvl", "POST /fail", "POST /wvl"}
	if diff := cmp.Diff(want, rt.Endpoints()); diff != "" {
		t.Errorf("endpoints mismatch (-want +got):\n%s", diff)
	}

	r := chi.NewRouter()
	rt.Bind(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/wvl", "application/json", strings.NewReader(`{"f64":1550.5}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || v != 1550.5 {
		t.Errorf("POST /wvl: status %d value %v", resp.StatusCode, v)
	}

	resp, err = http.Post(srv.URL+"/wvl", "application/json", strings.NewReader(`{"f64":`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed json, got %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/fail", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500 from a failing call, got %d", resp.StatusCode)
	}
}
