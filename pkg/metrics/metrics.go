package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry collects enforcement counters in-process. One structured record
// per ValidationGate call lands here; the monitor and write path feed it too.
type Registry struct {
	mu         sync.RWMutex
	endpoint   map[string]*EndpointStat
	validation map[string]*ValidationStat
	writes     map[string]int64
	checks     map[string]*CheckStat
	gauges     map[string]float64
}

type EndpointStat struct {
	Count          int64   `json:"count"`
	ErrorCount     int64   `json:"error_count"`
	TotalMillis    int64   `json:"total_millis"`
	MaxMillis      int64   `json:"max_millis"`
	AverageMillis  float64 `json:"average_millis"`
	LastStatusCode int     `json:"last_status_code"`
}

// ValidationStat is keyed by collection; level and outcome split the counts.
type ValidationStat struct {
	Total    int64            `json:"total"`
	Valid    int64            `json:"valid"`
	Invalid  int64            `json:"invalid"`
	Bypassed int64            `json:"bypassed"`
	Errors   int64            `json:"error_fields"`
	Warnings int64            `json:"warnings"`
	ByLevel  map[string]int64 `json:"by_level"`
}

type CheckStat struct {
	Runs     int64 `json:"runs"`
	Passed   int64 `json:"passed"`
	Failed   int64 `json:"failed"`
	LastMS   int64 `json:"last_ms"`
	TotalMS  int64 `json:"total_ms"`
	LastPass bool  `json:"last_pass"`
}

type Snapshot struct {
	GeneratedAt string                    `json:"generated_at"`
	Endpoints   map[string]EndpointStat   `json:"endpoints"`
	Validation  map[string]ValidationStat `json:"validation"`
	Writes      map[string]int64          `json:"writes"`
	Checks      map[string]CheckStat      `json:"checks"`
	Gauges      map[string]float64        `json:"gauges"`
}

func NewRegistry() *Registry {
	return &Registry{
		endpoint:   map[string]*EndpointStat{},
		validation: map[string]*ValidationStat{},
		writes:     map[string]int64{},
		checks:     map[string]*CheckStat{},
		gauges:     map[string]float64{},
	}
}

func (r *Registry) Observe(path string, status int, d time.Duration) {
	millis := d.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.endpoint[path]
	if !ok {
		stat = &EndpointStat{}
		r.endpoint[path] = stat
	}
	stat.Count++
	if status >= 400 {
		stat.ErrorCount++
	}
	stat.TotalMillis += millis
	if millis > stat.MaxMillis {
		stat.MaxMillis = millis
	}
	stat.LastStatusCode = status
	stat.AverageMillis = float64(stat.TotalMillis) / float64(stat.Count)
}

// ObserveValidation records one gate invocation. This is how enforcement
// rollouts are watched before flipping a collection from WARN to ENFORCE.
func (r *Registry) ObserveValidation(collection, level string, valid, bypassed bool, errCount, warnCount int) {
	if collection == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.validation[collection]
	if !ok {
		stat = &ValidationStat{ByLevel: map[string]int64{}}
		r.validation[collection] = stat
	}
	stat.Total++
	if valid {
		stat.Valid++
	} else {
		stat.Invalid++
	}
	if bypassed {
		stat.Bypassed++
	}
	stat.Errors += int64(errCount)
	stat.Warnings += int64(warnCount)
	stat.ByLevel[level]++
}

func (r *Registry) IncWrite(collection, operation string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	key := collection + "|" + strings.ToUpper(operation) + "|" + outcome
	r.mu.Lock()
	r.writes[key]++
	r.mu.Unlock()
}

func (r *Registry) ObserveCheck(name string, passed bool, d time.Duration) {
	if name == "" {
		return
	}
	ms := d.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.checks[name]
	if !ok {
		stat = &CheckStat{}
		r.checks[name] = stat
	}
	stat.Runs++
	if passed {
		stat.Passed++
	} else {
		stat.Failed++
	}
	stat.LastMS = ms
	stat.TotalMS += ms
	stat.LastPass = passed
}

func (r *Registry) SetGauge(name string, value float64) {
	if name == "" {
		return
	}
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Endpoints:   make(map[string]EndpointStat, len(r.endpoint)),
		Validation:  make(map[string]ValidationStat, len(r.validation)),
		Writes:      make(map[string]int64, len(r.writes)),
		Checks:      make(map[string]CheckStat, len(r.checks)),
		Gauges:      make(map[string]float64, len(r.gauges)),
	}
	for k, v := range r.endpoint {
		out.Endpoints[k] = *v
	}
	for k, v := range r.validation {
		stat := *v
		stat.ByLevel = make(map[string]int64, len(v.ByLevel))
		for lvl, n := range v.ByLevel {
			stat.ByLevel[lvl] = n
		}
		out.Validation[k] = stat
	}
	for k, v := range r.writes {
		out.Writes[k] = v
	}
	for k, v := range r.checks {
		out.Checks[k] = *v
	}
	for k, v := range r.gauges {
		out.Gauges[k] = v
	}
	return out
}

func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(snap)
	}
}

func (r *Registry) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		b := &strings.Builder{}
		b.WriteString("# HELP registry_endpoint_count total requests by endpoint\n")
		b.WriteString("# TYPE registry_endpoint_count counter\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			fmt.Fprintf(b, "registry_endpoint_count{endpoint=%q} %d\n", ep, snap.Endpoints[ep].Count)
		}
		b.WriteString("# HELP registry_endpoint_error_count total endpoint errors\n")
		b.WriteString("# TYPE registry_endpoint_error_count counter\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			fmt.Fprintf(b, "registry_endpoint_error_count{endpoint=%q} %d\n", ep, snap.Endpoints[ep].ErrorCount)
		}
		b.WriteString("# HELP registry_validation_total gate invocations by collection\n")
		b.WriteString("# TYPE registry_validation_total counter\n")
		for _, col := range SortedKeys(snap.Validation) {
			stat := snap.Validation[col]
			fmt.Fprintf(b, "registry_validation_total{collection=%q,outcome=\"valid\"} %d\n", col, stat.Valid)
			fmt.Fprintf(b, "registry_validation_total{collection=%q,outcome=\"invalid\"} %d\n", col, stat.Invalid)
			fmt.Fprintf(b, "registry_validation_total{collection=%q,outcome=\"bypassed\"} %d\n", col, stat.Bypassed)
		}
		b.WriteString("# HELP registry_write_total write decisions by collection, operation and outcome\n")
		b.WriteString("# TYPE registry_write_total counter\n")
		for _, key := range SortedKeys(snap.Writes) {
			parts := strings.SplitN(key, "|", 3)
			if len(parts) != 3 {
				continue
			}
			fmt.Fprintf(b, "registry_write_total{collection=%q,operation=%q,outcome=%q} %d\n",
				parts[0], parts[1], parts[2], snap.Writes[key])
		}
		b.WriteString("# HELP registry_check_runs_total consistency check executions\n")
		b.WriteString("# TYPE registry_check_runs_total counter\n")
		for _, name := range SortedKeys(snap.Checks) {
			stat := snap.Checks[name]
			fmt.Fprintf(b, "registry_check_runs_total{check=%q,result=\"pass\"} %d\n", name, stat.Passed)
			fmt.Fprintf(b, "registry_check_runs_total{check=%q,result=\"fail\"} %d\n", name, stat.Failed)
		}
		b.WriteString("# HELP registry_gauge operational gauge metrics\n")
		b.WriteString("# TYPE registry_gauge gauge\n")
		for _, name := range SortedKeys(snap.Gauges) {
			fmt.Fprintf(b, "registry_gauge{name=%q} %.3f\n", name, snap.Gauges[name])
		}
		_, _ = w.Write([]byte(b.String()))
	}
}

func SortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
