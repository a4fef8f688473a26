package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/brightseth/eden-genesis-registry-sub000/pkg/alerts"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/config"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/consistency"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/httpx"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/metrics"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/models"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/ratelimit"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/roles"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/scoring"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/store"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/stream"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/telemetry"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/validation"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/writegate"
)

// roleHeader carries the caller's registry role. The platform edge terminates
// auth and forwards the resolved role; an absent header means GUEST.
const roleHeader = "X-Registry-Role"

type Server struct {
	Cfg                 *config.Config
	DB                  registryDB
	Store               *store.Registry
	Cache               store.Cache
	Redis               *redis.Client
	Metrics             *metrics.Registry
	Validation          *validation.Gate
	Writes              *writegate.Gate
	Scores              *scoring.Engine
	Monitor             *consistency.Monitor
	Events              *stream.Hub
	RateLimiter         ratelimit.Limiter
	RateLimitEnabled    bool
	RateLimitPerMinute  int
	MaxRequestBodyBytes int64
}

type registryDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type registryDBCloser interface {
	registryDB
	Close()
}

type initTelemetryFunc func(ctx context.Context, service string) (func(context.Context) error, error)
type openDBFunc func(ctx context.Context) (registryDBCloser, error)
type openRedisFunc func(ctx context.Context) (*redis.Client, error)
type listenFunc func(server *http.Server) error
type startLoopsFunc func(s *Server)

// Testable variables for main()
var (
	logFatalf     = log.Fatalf
	initTelemetry = telemetry.Init
	openDBFn      = func(ctx context.Context) (registryDBCloser, error) { return store.NewPostgresPool(ctx) }
	openRedisFn   = store.NewRedis
	listenFn      = func(server *http.Server) error { return server.ListenAndServe() }
	startLoopsFn  = func(s *Server) {
		if !s.Cfg.MonitorDisabled {
			s.Monitor.Start()
		}
	}
)

func main() {
	if err := runRegistryd(initTelemetry, openDBFn, openRedisFn, listenFn, startLoopsFn); err != nil {
		logFatalf("registryd: %v", err)
	}
}

func runRegistryd(
	initTelemetry initTelemetryFunc,
	openDB openDBFunc,
	openRedis openRedisFunc,
	listen listenFunc,
	startLoops startLoopsFunc,
) error {
	ctx := context.Background()
	shutdown, err := initTelemetry(ctx, "registryd")
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	pool, err := openDB(ctx)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	redisClient, err := openRedis(ctx)
	if err != nil {
		log.Printf("redis unavailable, falling back to in-memory cache/limits: %v", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := store.NewCache(ctx, redisClient)

	reg := store.NewRegistry(pool)
	metricsReg := metrics.NewRegistry()
	events := stream.NewHub()

	dispatcher := &alerts.Dispatcher{
		Cache:       cache,
		DedupWindow: cfg.AlertDedupWindow,
		Timeout:     time.Millisecond * time.Duration(envInt("ALERT_TIMEOUT_MS", 5000)),
	}
	httpClient := telemetry.InstrumentClient(&http.Client{Timeout: time.Millisecond * time.Duration(envInt("PROBE_TIMEOUT_MS", 3000))})
	if cfg.AlertWebhookURL != "" {
		dispatcher.Sinks = append(dispatcher.Sinks, &alerts.WebhookSink{URL: cfg.AlertWebhookURL, Client: httpClient})
	}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := alerts.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaAlertTopic)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer func() { _ = sink.Close() }()
		dispatcher.Sinks = append(dispatcher.Sinks, sink)
	}

	monitor := consistency.NewMonitor(consistency.Options{
		Interval:     cfg.MonitorInterval,
		InitialDelay: cfg.MonitorInitialDelay,
		CheckTimeout: cfg.CheckTimeout,
		Metrics:      metricsReg,
		Dispatcher:   dispatcher,
		Hub:          events,
		Cache:        cache,
	})
	monitor.Register(consistency.NewTrainerAssignmentCheck(reg))
	monitor.Register(consistency.NewEconomicsBackfillCheck(reg))
	monitor.Register(consistency.NewFallbackDetectionCheck(reg, cfg.Thresholds))
	monitor.Register(consistency.NewMediaIntegrityCheck(reg))
	if len(cfg.LivenessEndpoints) > 0 {
		monitor.Register(consistency.NewEndpointLivenessCheck(httpClient, cfg.LivenessEndpoints))
	}

	rateLimitWindow := time.Second * time.Duration(envInt("RATE_LIMIT_WINDOW_SEC", 60))
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewRedis(redisClient, rateLimitWindow)
	} else {
		limiter = ratelimit.NewInMemory(rateLimitWindow)
	}

	maxBody := int64(envInt("MAX_REQUEST_BODY_BYTES", 1<<20))
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	s := &Server{
		Cfg:                 cfg,
		DB:                  pool,
		Store:               reg,
		Cache:               cache,
		Redis:               redisClient,
		Metrics:             metricsReg,
		Validation:          validation.NewGate(cfg, metricsReg),
		Writes:              writegate.NewGate(metricsReg),
		Scores:              scoring.NewEngine(cfg),
		Monitor:             monitor,
		Events:              events,
		RateLimiter:         limiter,
		RateLimitEnabled:    env("RATE_LIMIT_ENABLED", "true") == "true",
		RateLimitPerMinute:  envInt("RATE_LIMIT_PER_MINUTE", 240),
		MaxRequestBodyBytes: maxBody,
	}

	r := chi.NewRouter()
	r.Use(httpx.CORSMiddleware(env("CORS_ALLOWED_ORIGINS", "")))
	r.Use(httpx.SecurityHeadersMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(telemetry.HTTPMiddleware("registryd"))
	r.Use(s.limitRequestBodyMiddleware)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, 200, map[string]string{"status": "ok", "service": "registryd"})
	})
	r.Get("/metrics", s.Metrics.Handler())
	r.Get("/metrics/prometheus", s.Metrics.PrometheusHandler())

	r.Post("/v1/collections/{collection}/{operation}", s.handleWrite)
	r.Get("/v1/enforcement", s.handleEnforcement)
	r.Get("/v1/gates/{collection}", s.handleGates)
	r.Get("/v1/consistency", s.handleConsistency)
	r.Post("/v1/consistency/run", s.withMinimumRole(s.handleConsistencyRun, models.RoleAdmin))
	r.Get("/v1/consistency/report", s.handleConsistencyReport)
	r.Get("/v1/scores/{agent_id}/launch", s.handleLaunchScore)
	r.Get("/v1/scores/{agent_id}/performance", s.handlePerformanceScore)
	r.Get("/v1/stream", s.streamEvents)

	if startLoops != nil {
		startLoops(s)
	}

	addr := env("ADDR", ":8080")
	log.Printf("registryd listening on %s", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: envDurationSec("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		ReadTimeout:       envDurationSec("HTTP_READ_TIMEOUT_SEC", 15),
		WriteTimeout:      envDurationSec("HTTP_WRITE_TIMEOUT_SEC", 30),
		IdleTimeout:       envDurationSec("HTTP_IDLE_TIMEOUT_SEC", 120),
	}
	if listen == nil {
		return errors.New("listen function required")
	}
	return listen(server)
}

func callerRole(r *http.Request) (models.Role, error) {
	raw := strings.TrimSpace(r.Header.Get(roleHeader))
	if raw == "" {
		return models.RoleGuest, nil
	}
	return roles.Parse(raw)
}

type writeRequest struct {
	RecordID string         `json:"record_id,omitempty"`
	Payload  map[string]any `json:"payload"`
}

type writeResponse struct {
	RecordID   string                   `json:"record_id"`
	Applied    bool                     `json:"applied"`
	Validation models.ValidationOutcome `json:"validation"`
	Decision   models.WriteDecision     `json:"decision"`
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	collection, err := models.ParseCollection(chi.URLParam(r, "collection"))
	if err != nil {
		httpx.Error(w, 404, err.Error())
		return
	}
	op, err := models.ParseOperation(chi.URLParam(r, "operation"))
	if err != nil {
		httpx.Error(w, 404, err.Error())
		return
	}
	role, err := callerRole(r)
	if err != nil {
		httpx.Error(w, 400, err.Error())
		return
	}
	if retry, limited := s.checkRateLimit(r, role); limited {
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		httpx.Error(w, 429, "rate limit exceeded")
		return
	}

	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Error(w, 400, "invalid json body")
		return
	}

	var outcome models.ValidationOutcome
	if op == models.OpDelete {
		outcome, err = s.Validation.ValidateDelete(collection)
	} else {
		outcome, err = s.Validation.Validate(collection, req.Payload)
	}
	if err != nil {
		httpx.Error(w, 404, err.Error())
		return
	}
	decision, err := s.Writes.CheckWrite(collection, op, role)
	if err != nil {
		httpx.Error(w, 400, err.Error())
		return
	}

	resp := writeResponse{RecordID: req.RecordID, Validation: outcome, Decision: decision}
	if !outcome.Valid {
		httpx.WriteJSON(w, 422, resp)
		return
	}
	if !decision.Allowed {
		httpx.WriteJSON(w, 403, resp)
		return
	}

	if resp.RecordID == "" {
		if op != models.OpCreate {
			httpx.Error(w, 400, "record_id required")
			return
		}
		resp.RecordID = uuid.NewString()
	}
	raw, err := json.Marshal(req.Payload)
	if err != nil {
		httpx.Error(w, 400, "invalid payload")
		return
	}
	if err := s.Store.ApplyWrite(r.Context(), collection, op, resp.RecordID, raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, store.ErrRecordNotFound) {
			httpx.Error(w, 404, "record not found")
			return
		}
		log.Printf("write %s/%s failed: %v", collection, op, err)
		httpx.Error(w, 500, "write failed")
		return
	}
	resp.Applied = true
	s.Events.Publish(stream.NewEvent(stream.EventWrite, map[string]any{
		"collection": collection,
		"operation":  op,
		"record_id":  resp.RecordID,
	}))
	httpx.WriteJSON(w, 200, resp)
}

func (s *Server) handleEnforcement(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Level    models.EnforcementLevel `json:"level"`
		Bypassed bool                    `json:"bypassed"`
	}
	out := map[models.Collection]entry{}
	for _, c := range models.Collections() {
		out[c] = entry{Level: s.Cfg.LevelFor(c), Bypassed: s.Cfg.BypassFor(c)}
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"disabled":    s.Cfg.ValidationDisabled,
		"collections": out,
	})
}

func (s *Server) handleGates(w http.ResponseWriter, r *http.Request) {
	collection, err := models.ParseCollection(chi.URLParam(r, "collection"))
	if err != nil {
		httpx.Error(w, 404, err.Error())
		return
	}
	matrix, err := s.Writes.DescribeGates(collection)
	if err != nil {
		httpx.Error(w, 404, err.Error())
		return
	}
	httpx.WriteJSON(w, 200, matrix)
}

func (s *Server) handleConsistency(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, 200, map[string]any{
		"running":  s.Monitor.Running(),
		"interval": s.Cfg.MonitorInterval.String(),
		"checks":   s.Monitor.Checks(),
	})
}

func (s *Server) handleConsistencyRun(w http.ResponseWriter, r *http.Request) {
	if name := strings.TrimSpace(r.URL.Query().Get("check")); name != "" {
		result, err := s.Monitor.RunCheck(r.Context(), name)
		if err != nil {
			httpx.Error(w, 404, err.Error())
			return
		}
		httpx.WriteJSON(w, 200, result)
		return
	}
	httpx.WriteJSON(w, 200, s.Monitor.RunAll(r.Context()))
}

func (s *Server) handleConsistencyReport(w http.ResponseWriter, r *http.Request) {
	report, ok := s.Monitor.LastReport(r.Context())
	if !ok {
		httpx.Error(w, 404, "no report yet")
		return
	}
	httpx.WriteJSON(w, 200, report)
}

func (s *Server) handleLaunchScore(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.agentSnapshot(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, 200, s.Scores.EvaluateLaunch(snap))
}

func (s *Server) handlePerformanceScore(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.agentSnapshot(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, 200, s.Scores.EvaluatePerformance(snap))
}

func (s *Server) agentSnapshot(w http.ResponseWriter, r *http.Request) (models.AgentSnapshot, bool) {
	agentID := chi.URLParam(r, "agent_id")
	snap, err := s.Store.AgentSnapshot(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.Error(w, 404, "agent not found")
		} else {
			log.Printf("snapshot %s failed: %v", agentID, err)
			httpx.Error(w, 500, "snapshot failed")
		}
		return snap, false
	}
	return snap, true
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		httpx.Error(w, 503, "stream unavailable")
		return
	}
	opts := &websocket.AcceptOptions{}
	if origins := splitList(env("WS_ALLOWED_ORIGINS", "")); len(origins) > 0 {
		opts.OriginPatterns = origins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sub := s.Events.Subscribe(64)
	defer s.Events.Unsubscribe(sub)

	_ = wsjson.Write(ctx, conn, stream.NewEvent("ready", nil))
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case evt, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

// checkRateLimit buckets callers by role and remote host. Limiter failures
// are already handled inside the limiter; only an explicit deny blocks.
func (s *Server) checkRateLimit(r *http.Request, role models.Role) (int, bool) {
	if !s.RateLimitEnabled || s.RateLimiter == nil || s.RateLimitPerMinute <= 0 {
		return 0, false
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	d := s.RateLimiter.Allow("write:"+string(role)+":"+host, s.RateLimitPerMinute)
	if d.Allowed {
		return 0, false
	}
	retry := int(time.Until(d.ResetAt) / time.Second)
	if retry <= 0 {
		retry = 1
	}
	return retry, true
}

func (s *Server) withMinimumRole(h http.HandlerFunc, minimum models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, err := callerRole(r)
		if err != nil {
			httpx.Error(w, 400, err.Error())
			return
		}
		ok, err := roles.MeetsMinimum(role, minimum)
		if err != nil {
			httpx.Error(w, 400, err.Error())
			return
		}
		if !ok {
			httpx.Error(w, 403, fmt.Sprintf("role %s is below required %s", role, minimum))
			return
		}
		h(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: 200}
		next.ServeHTTP(rec, r)
		s.Metrics.Observe(r.Method+" "+r.URL.Path, rec.code, time.Since(start))
	})
}

func (s *Server) limitRequestBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && s.MaxRequestBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envDurationSec(k string, def int) time.Duration {
	return time.Second * time.Duration(envInt(k, def))
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
