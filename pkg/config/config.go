package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brightseth/eden-genesis-registry-sub000/pkg/models"

	"gopkg.in/yaml.v3"
)

// Config is resolved once at process start and never mutated afterwards.
// Components receive it by pointer and treat it as read-only.
type Config struct {
	// Global kill switch: forces every collection to OFF. Always wins.
	ValidationDisabled bool
	// Emergency bypass: schema still resolved but never evaluated.
	ValidationBypass bool
	DefaultLevel     models.EnforcementLevel

	levelOverrides  map[models.Collection]models.EnforcementLevel
	bypassOverrides map[models.Collection]bool

	MonitorDisabled     bool
	MonitorInterval     time.Duration
	MonitorInitialDelay time.Duration
	CheckTimeout        time.Duration
	AlertDedupWindow    time.Duration

	LivenessEndpoints []string
	AlertWebhookURL   string
	KafkaBrokers      []string
	KafkaAlertTopic   string

	// Explicit override set for agents migrated before the cohort flag existed.
	GenesisOverrideIDs map[string]struct{}

	Thresholds Thresholds
}

// Thresholds are the tunable heuristics behind the static-fallback detection
// check and the staleness alerting. Defaults match historical behavior.
type Thresholds struct {
	MinTrainerCount       int     `yaml:"min_trainer_count"`
	MinEconomicsCoverage  float64 `yaml:"min_economics_coverage"`
	MinProfileCoverage    float64 `yaml:"min_profile_coverage"`
	StaleAfterDays        int     `yaml:"stale_after_days"`
	PerformanceStaleDays  int     `yaml:"performance_stale_days"`
	MinActiveAgentsSignal int     `yaml:"min_active_agents_signal"`
}

func defaultThresholds() Thresholds {
	return Thresholds{
		MinTrainerCount:       1,
		MinEconomicsCoverage:  0.8,
		MinProfileCoverage:    0.8,
		StaleAfterDays:        14,
		PerformanceStaleDays:  7,
		MinActiveAgentsSignal: 1,
	}
}

// FromEnv builds the immutable Config from process environment, loading the
// optional thresholds file named by REGISTRY_THRESHOLDS_FILE.
func FromEnv() (*Config, error) {
	cfg := &Config{
		ValidationDisabled:  envBool("VALIDATION_DISABLED", false),
		ValidationBypass:    envBool("VALIDATION_BYPASS", false),
		DefaultLevel:        models.LevelEnforce,
		levelOverrides:      map[models.Collection]models.EnforcementLevel{},
		bypassOverrides:     map[models.Collection]bool{},
		MonitorDisabled:     envBool("CONSISTENCY_DISABLED", false),
		MonitorInterval:     time.Second * time.Duration(envInt("CONSISTENCY_INTERVAL_SEC", 3600)),
		MonitorInitialDelay: time.Second * time.Duration(envInt("CONSISTENCY_INITIAL_DELAY_SEC", 30)),
		CheckTimeout:        time.Millisecond * time.Duration(envInt("CONSISTENCY_CHECK_TIMEOUT_MS", 10000)),
		AlertDedupWindow:    time.Second * time.Duration(envInt("ALERT_DEDUP_WINDOW_SEC", 1800)),
		LivenessEndpoints:   splitList(env("CONSISTENCY_LIVENESS_URLS", "")),
		AlertWebhookURL:     env("ALERT_WEBHOOK_URL", ""),
		KafkaBrokers:        splitList(env("KAFKA_BROKERS", "")),
		KafkaAlertTopic:     env("KAFKA_ALERT_TOPIC", "registry.alerts"),
		GenesisOverrideIDs:  map[string]struct{}{},
		Thresholds:          defaultThresholds(),
	}
	if raw, ok := models.ParseEnforcementLevel(env("VALIDATION_DEFAULT_LEVEL", "")); ok {
		cfg.DefaultLevel = raw
	}
	for _, c := range models.Collections() {
		key := strings.ToUpper(string(c))
		if lvl, ok := models.ParseEnforcementLevel(env("VALIDATION_LEVEL_"+key, "")); ok {
			cfg.levelOverrides[c] = lvl
		}
		if envBool("VALIDATION_BYPASS_"+key, false) {
			cfg.bypassOverrides[c] = true
		}
	}
	for _, id := range splitList(env("GENESIS_COHORT_IDS", "")) {
		cfg.GenesisOverrideIDs[id] = struct{}{}
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = time.Hour
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 10 * time.Second
	}
	if path := strings.TrimSpace(env("REGISTRY_THRESHOLDS_FILE", "")); path != "" {
		th, err := loadThresholds(path)
		if err != nil {
			return nil, err
		}
		cfg.Thresholds = th
	}
	return cfg, nil
}

// LevelFor resolves the effective enforcement level for a collection.
// The global kill switch wins over every override.
func (c *Config) LevelFor(col models.Collection) models.EnforcementLevel {
	if c.ValidationDisabled {
		return models.LevelOff
	}
	if lvl, ok := c.levelOverrides[col]; ok {
		return lvl
	}
	if c.DefaultLevel != "" {
		return c.DefaultLevel
	}
	return models.LevelEnforce
}

// BypassFor reports whether validation is bypassed for a collection.
func (c *Config) BypassFor(col models.Collection) bool {
	return c.ValidationBypass || c.bypassOverrides[col]
}

// WithLevel returns a copy with one per-collection override set. Test helper
// and seed for alternate engines; the receiver is not modified.
func (c *Config) WithLevel(col models.Collection, lvl models.EnforcementLevel) *Config {
	out := *c
	out.levelOverrides = make(map[models.Collection]models.EnforcementLevel, len(c.levelOverrides)+1)
	for k, v := range c.levelOverrides {
		out.levelOverrides[k] = v
	}
	out.levelOverrides[col] = lvl
	return &out
}

// WithBypass returns a copy with one per-collection bypass set.
func (c *Config) WithBypass(col models.Collection, on bool) *Config {
	out := *c
	out.bypassOverrides = make(map[models.Collection]bool, len(c.bypassOverrides)+1)
	for k, v := range c.bypassOverrides {
		out.bypassOverrides[k] = v
	}
	out.bypassOverrides[col] = on
	return &out
}

func loadThresholds(path string) (Thresholds, error) {
	th := defaultThresholds()
	data, err := os.ReadFile(path)
	if err != nil {
		return th, fmt.Errorf("read thresholds file: %w", err)
	}
	if err := yaml.Unmarshal(data, &th); err != nil {
		return th, fmt.Errorf("parse thresholds file: %w", err)
	}
	if th.MinEconomicsCoverage < 0 || th.MinEconomicsCoverage > 1 {
		return th, fmt.Errorf("min_economics_coverage must be in [0,1], got %v", th.MinEconomicsCoverage)
	}
	if th.MinProfileCoverage < 0 || th.MinProfileCoverage > 1 {
		return th, fmt.Errorf("min_profile_coverage must be in [0,1], got %v", th.MinProfileCoverage)
	}
	return th, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return def
	}
	return raw == "1" || raw == "true" || raw == "yes" || raw == "on"
}

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
