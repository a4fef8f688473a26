package consistency

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/brightseth/eden-genesis-registry-sub000/pkg/alerts"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/metrics"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/models"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/store"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/stream"
)

// Check is one independent audit of stored-data integrity. Registered at
// startup and re-run for the monitor's lifetime.
type Check struct {
	Name        string
	Description string
	Critical    bool
	Evaluate    func(ctx context.Context) Finding
}

// Finding is what a check body reports; the monitor wraps it with timing.
type Finding struct {
	Passed   bool
	Details  string
	Metrics  map[string]float64
	Warnings []string
	Errors   []string
}

const lastReportKey = "consistency:last_report"

// remediation maps a failing check to its fixed remediation hint.
var remediation = map[string]string{
	CheckTrainerAssignment: "assign a trainer to every active agent before the next cohort review",
	CheckEconomicsBackfill: "backfill agent_economics rows for active agents missing token configuration",
	CheckFallbackDetection: "verify consumers read from the registry API, not bundled fallback data",
	CheckMediaIntegrity:    "delete orphaned agent_media rows or restore the referenced agents",
	CheckEndpointLiveness:  "inspect registry API deployment; one or more critical read paths are down",
}

// Monitor owns one background scheduling loop per process.
type Monitor struct {
	checks       []Check
	checkTimeout time.Duration
	interval     time.Duration
	initialDelay time.Duration

	metrics    *metrics.Registry
	dispatcher *alerts.Dispatcher
	hub        *stream.Hub
	cache      store.Cache

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
}

type Options struct {
	Interval     time.Duration
	InitialDelay time.Duration
	CheckTimeout time.Duration
	Metrics      *metrics.Registry
	Dispatcher   *alerts.Dispatcher
	Hub          *stream.Hub
	Cache        store.Cache
}

func NewMonitor(opts Options) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	timeout := opts.CheckTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Monitor{
		checkTimeout: timeout,
		interval:     interval,
		initialDelay: opts.InitialDelay,
		metrics:      opts.Metrics,
		dispatcher:   opts.Dispatcher,
		hub:          opts.Hub,
		cache:        opts.Cache,
	}
}

// Register adds a check. Checks are registered during startup, before Start.
func (m *Monitor) Register(c Check) {
	m.mu.Lock()
	m.checks = append(m.checks, c)
	m.mu.Unlock()
}

func (m *Monitor) Checks() []models.CheckInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.CheckInfo, 0, len(m.checks))
	for _, c := range m.checks {
		out = append(out, models.CheckInfo{Name: c.Name, Description: c.Description, Critical: c.Critical})
	}
	return out
}

func (m *Monitor) Running() bool {
	return m.running.Load()
}

// RunCheck executes one named check with timing and failure isolation. A
// failing critical check dispatches its alert synchronously before return.
func (m *Monitor) RunCheck(ctx context.Context, name string) (models.ConsistencyResult, error) {
	m.mu.Lock()
	var found *Check
	for i := range m.checks {
		if m.checks[i].Name == name {
			found = &m.checks[i]
			break
		}
	}
	m.mu.Unlock()
	if found == nil {
		return models.ConsistencyResult{}, fmt.Errorf("no consistency check named %q", name)
	}
	return m.runOne(ctx, *found), nil
}

// RunAll executes every registered check sequentially and aggregates the
// weighted health score: critical checks weigh 2, the rest 1.
func (m *Monitor) RunAll(ctx context.Context) models.ConsistencyReport {
	m.mu.Lock()
	checks := make([]Check, len(m.checks))
	copy(checks, m.checks)
	m.mu.Unlock()

	report := models.ConsistencyReport{
		ReportID:  uuid.New().String(),
		Timestamp: time.Now().UTC(),
	}
	var weightTotal, weightPassed int
	for _, c := range checks {
		result := m.runOne(ctx, c)
		weight := 1
		if c.Critical {
			weight = 2
		}
		weightTotal += weight
		if result.Passed {
			weightPassed += weight
		} else if hint, ok := remediation[c.Name]; ok {
			report.Recommendations = append(report.Recommendations, hint)
		}
		report.CheckResults = append(report.CheckResults, result)
	}
	if weightTotal > 0 {
		report.OverallHealth = int(math.Round(100 * float64(weightPassed) / float64(weightTotal)))
	} else {
		report.OverallHealth = 100
	}
	m.emitReport(ctx, report)
	return report
}

func (m *Monitor) runOne(ctx context.Context, c Check) models.ConsistencyResult {
	result := models.ConsistencyResult{
		Name:     c.Name,
		Critical: c.Critical,
		RanAt:    time.Now().UTC(),
	}
	runCtx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	start := time.Now()
	finding := m.evaluate(runCtx, c)
	cancel()
	result.Elapsed = time.Since(start)
	result.Passed = finding.Passed
	result.Details = finding.Details
	result.Metrics = finding.Metrics
	result.Warnings = finding.Warnings
	result.Errors = finding.Errors
	if m.metrics != nil {
		m.metrics.ObserveCheck(c.Name, result.Passed, result.Elapsed)
	}
	if c.Critical && !result.Passed && m.dispatcher != nil {
		alert := models.Alert{
			AlertID:  uuid.New().String(),
			Check:    c.Name,
			Severity: "CRITICAL",
			Details:  result.Details,
			Errors:   result.Errors,
			RaisedAt: time.Now().UTC(),
		}
		m.dispatcher.Dispatch(ctx, alert)
		if m.hub != nil {
			m.hub.Publish(stream.NewEvent(stream.EventAlert, alert))
		}
	}
	return result
}

// evaluate shields the monitor loop from a misbehaving check body: a panic
// becomes a failed finding, never a crashed loop.
func (m *Monitor) evaluate(ctx context.Context, c Check) (finding Finding) {
	defer func() {
		if r := recover(); r != nil {
			finding = Finding{
				Passed:  false,
				Details: "check aborted",
				Errors:  []string{fmt.Sprintf("check panicked: %v", r)},
			}
		}
	}()
	if c.Evaluate == nil {
		return Finding{Passed: false, Details: "check has no evaluate body", Errors: []string{"not implemented"}}
	}
	return c.Evaluate(ctx)
}

func (m *Monitor) emitReport(ctx context.Context, report models.ConsistencyReport) {
	if m.metrics != nil {
		m.metrics.SetGauge("overall_health", float64(report.OverallHealth))
	}
	if m.hub != nil {
		m.hub.Publish(stream.NewEvent(stream.EventReport, report))
	}
	if m.cache != nil {
		if payload, err := json.Marshal(report); err == nil {
			if err := m.cache.Set(ctx, lastReportKey, string(payload), m.interval*2); err != nil {
				log.Printf("report cache write failed: %v", err)
			}
		}
	}
}

// LastReport returns the most recent cached report, if any.
func (m *Monitor) LastReport(ctx context.Context) (models.ConsistencyReport, bool) {
	var report models.ConsistencyReport
	if m.cache == nil {
		return report, false
	}
	raw, err := m.cache.Get(ctx, lastReportKey)
	if err != nil || raw == "" {
		return report, false
	}
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return report, false
	}
	return report, true
}

// Start schedules periodic RunAll execution plus one delayed initial run.
// Idempotent: a second call while running is a logged no-op.
func (m *Monitor) Start() {
	if !m.running.CompareAndSwap(false, true) {
		log.Printf("consistency monitor already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	go m.loop(ctx)
	log.Printf("consistency monitor started: interval=%s initial_delay=%s", m.interval, m.initialDelay)
}

// Stop cancels future scheduled runs. An in-flight RunAll completes; each
// run uses its own context so cancellation only stops the schedule.
func (m *Monitor) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	log.Printf("consistency monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	if m.initialDelay > 0 {
		timer := time.NewTimer(m.initialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	m.RunAll(context.Background())
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunAll(context.Background())
		}
	}
}
