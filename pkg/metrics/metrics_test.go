package metrics

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveValidationCounters(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.ObserveValidation("agent", "ENFORCE", false, false, 2, 0)
	r.ObserveValidation("agent", "ENFORCE", true, false, 0, 0)
	r.ObserveValidation("agent", "OFF", true, true, 0, 0)

	snap := r.Snapshot()
	stat, ok := snap.Validation["agent"]
	if !ok {
		t.Fatalf("missing agent stats: %+v", snap.Validation)
	}
	if stat.Total != 3 || stat.Valid != 2 || stat.Invalid != 1 || stat.Bypassed != 1 {
		t.Fatalf("unexpected counters: %+v", stat)
	}
	if stat.Errors != 2 {
		t.Fatalf("expected 2 error fields recorded, got %d", stat.Errors)
	}
	if stat.ByLevel["ENFORCE"] != 2 || stat.ByLevel["OFF"] != 1 {
		t.Fatalf("unexpected level split: %+v", stat.ByLevel)
	}
}

func TestIncWriteAndCheckCounters(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.IncWrite("agent", "CREATE", true)
	r.IncWrite("agent", "CREATE", true)
	r.IncWrite("agent", "DELETE", false)
	r.ObserveCheck("trainer_assignment", true, 5*time.Millisecond)
	r.ObserveCheck("trainer_assignment", false, 7*time.Millisecond)
	r.SetGauge("overall_health", 75)

	snap := r.Snapshot()
	if snap.Writes["agent|CREATE|allowed"] != 2 || snap.Writes["agent|DELETE|denied"] != 1 {
		t.Fatalf("unexpected write counters: %+v", snap.Writes)
	}
	check := snap.Checks["trainer_assignment"]
	if check.Runs != 2 || check.Passed != 1 || check.Failed != 1 || check.LastPass {
		t.Fatalf("unexpected check counters: %+v", check)
	}
	if snap.Gauges["overall_health"] != 75 {
		t.Fatalf("unexpected gauges: %+v", snap.Gauges)
	}
}

func TestObserveEndpoint(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Observe("POST /v1/collections/agent/create", 200, 10*time.Millisecond)
	r.Observe("POST /v1/collections/agent/create", 422, 30*time.Millisecond)

	snap := r.Snapshot()
	stat := snap.Endpoints["POST /v1/collections/agent/create"]
	if stat.Count != 2 || stat.ErrorCount != 1 {
		t.Fatalf("unexpected endpoint stats: %+v", stat)
	}
	if stat.MaxMillis < 30 || stat.LastStatusCode != 422 {
		t.Fatalf("unexpected endpoint stats: %+v", stat)
	}
}

func TestJSONHandler(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.ObserveValidation("lore", "WARN", true, false, 0, 1)

	rec := httptest.NewRecorder()
	r.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status %d", rec.Code)
	}
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Validation["lore"].Warnings != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap.Validation)
	}
}

func TestPrometheusHandler(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.ObserveValidation("agent", "ENFORCE", false, false, 1, 0)
	r.IncWrite("profile", "UPDATE", false)
	r.ObserveCheck("media_integrity", true, time.Millisecond)
	r.SetGauge("overall_health", 100)

	rec := httptest.NewRecorder()
	r.PrometheusHandler()(rec, httptest.NewRequest("GET", "/metrics/prometheus", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`registry_validation_total{collection="agent",outcome="invalid"} 1`,
		`registry_write_total{collection="profile",operation="UPDATE",outcome="denied"} 1`,
		`registry_check_runs_total{check="media_integrity",result="pass"} 1`,
		`registry_gauge{name="overall_health"} 100.000`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in output:\n%s", want, body)
		}
	}
}

func TestSortedKeys(t *testing.T) {
	t.Parallel()
	got := SortedKeys(map[string]int{"b": 1, "a": 2, "c": 3})
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("unexpected order: %v", got)
	}
}
