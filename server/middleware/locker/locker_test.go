package locker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/cavitytune/generichttp"
)

type table generichttp.RouteTable

func (t table) RT() generichttp.RouteTable { return generichttp.RouteTable(t) }

func TestLockBouncesWrites(t *testing.T) {
	calls := 0
	rt := table{
		generichttp.MethodPath{Method: http.MethodPost, Path: "/output"}: func(w http.ResponseWriter, r *http.Request) {
			calls++
		},
		generichttp.MethodPath{Method: http.MethodGet, Path: "/output"}: func(w http.ResponseWriter, r *http.Request) {},
	}
	l := New()
	Inject(rt, l)
	r := chi.NewRouter()
	r.Use(l.Check)
	rt.RT().Bind(r)

	do := func(method, path, body string) int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec.Code
	}

	if code := do(http.MethodPost, "/output", ""); code != http.StatusOK {
		t.Errorf("unlocked write: expected 200, got %d", code)
	}
	if code := do(http.MethodPost, "/lock", `{"bool":true}`); code != http.StatusOK || !l.Locked() {
		t.Fatalf("locking: %d, locked %v", code, l.Locked())
	}
	if code := do(http.MethodPost, "/output", ""); code != http.StatusLocked {
		t.Errorf("locked write: expected 423, got %d", code)
	}
	if code := do(http.MethodGet, "/output", ""); code != http.StatusOK {
		t.Errorf("locked read: expected 200, got %d", code)
	}
	if code := do(http.MethodPost, "/lock", `{"bool":false}`); code != http.StatusOK || l.Locked() {
		t.Fatalf("unlocking: %d, locked %v", code, l.Locked())
	}
	if calls != 1 {
		t.Errorf("expected exactly one write through, got %d", calls)
	}
}
