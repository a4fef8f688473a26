package consistency

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/brightseth/eden-genesis-registry-sub000/pkg/config"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/httpx"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/store"
)

const (
	CheckTrainerAssignment = "trainer_assignment"
	CheckEconomicsBackfill = "economics_backfill"
	CheckFallbackDetection = "fallback_detection"
	CheckMediaIntegrity    = "media_integrity"
	CheckEndpointLiveness  = "endpoint_liveness"
)

// NewTrainerAssignmentCheck verifies every active agent has a trainer.
func NewTrainerAssignmentCheck(reg *store.Registry) Check {
	return Check{
		Name:        CheckTrainerAssignment,
		Description: "every active agent has an assigned trainer",
		Critical:    true,
		Evaluate: func(ctx context.Context) Finding {
			total, missing, err := reg.ActiveAgentsMissingTrainer(ctx)
			if err != nil {
				return storeFault(err)
			}
			f := Finding{
				Passed:  len(missing) == 0,
				Details: fmt.Sprintf("%d/%d active agents have a trainer", total-len(missing), total),
				Metrics: map[string]float64{
					"active_agents":   float64(total),
					"missing_trainer": float64(len(missing)),
				},
			}
			if len(missing) > 0 {
				f.Errors = []string{"agents without trainer: " + strings.Join(missing, ", ")}
			}
			return f
		},
	}
}

// NewEconomicsBackfillCheck verifies the economics migration backfill holds:
// every active agent carries token configuration.
func NewEconomicsBackfillCheck(reg *store.Registry) Check {
	return Check{
		Name:        CheckEconomicsBackfill,
		Description: "every active agent has an economics row",
		Critical:    true,
		Evaluate: func(ctx context.Context) Finding {
			total, missing, err := reg.ActiveAgentsMissingEconomics(ctx)
			if err != nil {
				return storeFault(err)
			}
			f := Finding{
				Passed:  len(missing) == 0,
				Details: fmt.Sprintf("%d/%d active agents have economics", total-len(missing), total),
				Metrics: map[string]float64{
					"active_agents":     float64(total),
					"missing_economics": float64(len(missing)),
				},
			}
			if len(missing) > 0 {
				f.Errors = []string{"agents without economics: " + strings.Join(missing, ", ")}
			}
			return f
		},
	}
}

// NewFallbackDetectionCheck is a heuristic: coverage ratios far below the
// configured floor suggest consumers are serving bundled fallback data
// instead of reading the registry. Warning-only.
func NewFallbackDetectionCheck(reg *store.Registry, th config.Thresholds) Check {
	return Check{
		Name:        CheckFallbackDetection,
		Description: "consumers appear to read live registry data, not static fallbacks",
		Critical:    false,
		Evaluate: func(ctx context.Context) Finding {
			stats, err := reg.Coverage(ctx)
			if err != nil {
				return storeFault(err)
			}
			f := Finding{
				Passed: true,
				Metrics: map[string]float64{
					"active_agents":      float64(stats.ActiveAgents),
					"trainer_count":      float64(stats.TrainerCount),
					"economics_coverage": stats.EconomicsCoverage,
					"profile_coverage":   stats.ProfileCoverage,
				},
			}
			if stats.ActiveAgents < th.MinActiveAgentsSignal {
				f.Passed = false
				f.Warnings = append(f.Warnings, fmt.Sprintf("active agent count %d below signal floor %d", stats.ActiveAgents, th.MinActiveAgentsSignal))
			}
			if stats.TrainerCount < th.MinTrainerCount {
				f.Passed = false
				f.Warnings = append(f.Warnings, fmt.Sprintf("trainer count %d below floor %d", stats.TrainerCount, th.MinTrainerCount))
			}
			if stats.EconomicsCoverage < th.MinEconomicsCoverage {
				f.Passed = false
				f.Warnings = append(f.Warnings, fmt.Sprintf("economics coverage %.0f%% below floor %.0f%%", stats.EconomicsCoverage*100, th.MinEconomicsCoverage*100))
			}
			if stats.ProfileCoverage < th.MinProfileCoverage {
				f.Passed = false
				f.Warnings = append(f.Warnings, fmt.Sprintf("profile coverage %.0f%% below floor %.0f%%", stats.ProfileCoverage*100, th.MinProfileCoverage*100))
			}
			if f.Passed {
				f.Details = "coverage ratios look live"
			} else {
				f.Details = "coverage ratios suggest static fallback data in use"
			}
			return f
		},
	}
}

// NewMediaIntegrityCheck flags media rows referencing a deleted agent.
func NewMediaIntegrityCheck(reg *store.Registry) Check {
	return Check{
		Name:        CheckMediaIntegrity,
		Description: "no orphaned agent_media rows",
		Critical:    true,
		Evaluate: func(ctx context.Context) Finding {
			orphans, err := reg.OrphanMediaCount(ctx)
			if err != nil {
				return storeFault(err)
			}
			f := Finding{
				Passed:  orphans == 0,
				Details: fmt.Sprintf("%d orphaned media rows", orphans),
				Metrics: map[string]float64{"orphaned_media": float64(orphans)},
			}
			if orphans > 0 {
				f.Errors = []string{fmt.Sprintf("%d media rows reference deleted agents", orphans)}
			}
			return f
		},
	}
}

// NewEndpointLivenessCheck probes the fixed list of critical read paths.
func NewEndpointLivenessCheck(client *http.Client, urls []string) Check {
	return Check{
		Name:        CheckEndpointLiveness,
		Description: "critical registry read paths respond successfully",
		Critical:    true,
		Evaluate: func(ctx context.Context) Finding {
			if len(urls) == 0 {
				return Finding{Passed: true, Details: "no liveness endpoints configured"}
			}
			var down []string
			for _, url := range urls {
				status, _, err := httpx.RequestJSON(ctx, client, http.MethodGet, url, nil, nil, 1, 0)
				if err != nil || status < 200 || status >= 300 {
					down = append(down, url)
				}
			}
			f := Finding{
				Passed:  len(down) == 0,
				Details: fmt.Sprintf("%d/%d endpoints healthy", len(urls)-len(down), len(urls)),
				Metrics: map[string]float64{
					"endpoints_total": float64(len(urls)),
					"endpoints_down":  float64(len(down)),
				},
			}
			if len(down) > 0 {
				f.Errors = []string{"unreachable: " + strings.Join(down, ", ")}
			}
			return f
		},
	}
}

// storeFault converts a store error into a failed finding: infrastructure
// trouble is never success-by-default.
func storeFault(err error) Finding {
	return Finding{
		Passed:  false,
		Details: "store query failed",
		Errors:  []string{err.Error()},
	}
}
