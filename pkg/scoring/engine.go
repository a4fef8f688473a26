package scoring

import (
	"fmt"
	"time"

	"github.com/brightseth/eden-genesis-registry-sub000/pkg/config"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/models"
)

const (
	GateDemand     = "demand"
	GateRetention  = "retention"
	GateEfficiency = "efficiency"
)

// Status labels for the continuous performance variant.
const (
	StatusExcellent  = "excellent"
	StatusGood       = "good"
	StatusConcerning = "concerning"
	StatusCritical   = "critical"
)

// thresholds are per-gate pass marks; the genesis tier is strictly lower.
var passThresholds = map[models.CohortPolicy]map[string]int{
	models.PolicyGenesis: {
		GateDemand:     40,
		GateRetention:  45,
		GateEfficiency: 50,
	},
	models.PolicyStandard: {
		GateDemand:     70,
		GateRetention:  75,
		GateEfficiency: 80,
	},
}

// Engine scores agents for launch readiness and ongoing performance. It is
// read-only against the store: callers fetch a snapshot first, the engine
// computes purely from it.
type Engine struct {
	genesisOverride map[string]struct{}
	staleDays       int
	now             func() time.Time
}

func NewEngine(cfg *config.Config) *Engine {
	staleDays := cfg.Thresholds.PerformanceStaleDays
	if staleDays <= 0 {
		staleDays = 7
	}
	return &Engine{
		genesisOverride: cfg.GenesisOverrideIDs,
		staleDays:       staleDays,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// PolicyFor selects the cohort policy by explicit membership: the cohort
// flag set at creation time, or the configured override set for agents
// migrated before the flag existed. Never inferred from other attributes.
func (e *Engine) PolicyFor(snap models.AgentSnapshot) models.CohortPolicy {
	if snap.GenesisCohort {
		return models.PolicyGenesis
	}
	if _, ok := e.genesisOverride[snap.ID]; ok {
		return models.PolicyGenesis
	}
	return models.PolicyStandard
}

// EvaluateLaunch produces the binary admit/deny readiness scorecard.
func (e *Engine) EvaluateLaunch(snap models.AgentSnapshot) models.Scorecard {
	policy := e.PolicyFor(snap)
	gates := []models.GateScore{
		e.demandGate(snap, policy),
		e.retentionGate(snap, policy),
		e.efficiencyGate(snap, policy),
	}
	card := models.Scorecard{
		AgentID:     snap.ID,
		Policy:      policy,
		Score:       meanScore(gates),
		Passed:      allPassed(gates),
		Gates:       gates,
		GeneratedAt: e.now(),
	}
	card.Recommendations = recommend(gates, policy)
	return card
}

// EvaluatePerformance produces the continuous health scorecard with a tiered
// status label. Staleness alerting is a supplementary rule layered on top:
// it fires on recency alone, regardless of the mean score.
func (e *Engine) EvaluatePerformance(snap models.AgentSnapshot) models.Scorecard {
	card := e.EvaluateLaunch(snap)
	card.StatusLabel = statusLabel(card.Score)
	if !snap.LastActiveAt.IsZero() {
		idle := e.now().Sub(snap.LastActiveAt)
		if idle > time.Duration(e.staleDays)*24*time.Hour {
			card.Alerts = append(card.Alerts, fmt.Sprintf("no activity for %d days (threshold %d)", int(idle.Hours()/24), e.staleDays))
		}
	} else {
		card.Alerts = append(card.Alerts, "no activity recorded")
	}
	return card
}

// demandGate: profile completeness, produced artifacts, identity metadata.
// Genesis awards full credit for minimal presence; standard requires depth.
func (e *Engine) demandGate(snap models.AgentSnapshot, policy models.CohortPolicy) models.GateScore {
	score := 0
	if policy == models.PolicyGenesis {
		if snap.DisplayName != "" {
			score += 40
		}
		if snap.ArtifactCount > 0 {
			score += 40
		}
		if snap.Bio != "" || snap.AvatarURL != "" {
			score += 20
		}
	} else {
		if len(snap.Bio) >= 100 {
			score += 20
		} else if snap.Bio != "" {
			score += 10
		}
		if snap.AvatarURL != "" {
			score += 10
		}
		score += capPoints(snap.ArtifactCount*5, 50)
		score += capPoints(len(snap.SocialHandles)*10, 20)
	}
	return gateScore(GateDemand, score, policy)
}

// retentionGate: checklist completion, external presence, activity recency.
// Genesis weights presence over volume.
func (e *Engine) retentionGate(snap models.AgentSnapshot, policy models.CohortPolicy) models.GateScore {
	score := 0
	if policy == models.PolicyGenesis {
		if snap.DisplayName != "" {
			score += 50
		}
		if snap.ChecklistDone > 0 || snap.ArtifactCount > 0 {
			score += 30
		}
		if e.activeWithin(snap, 90) {
			score += 20
		}
	} else {
		if snap.ChecklistTotal > 0 {
			score += int(40 * float64(snap.ChecklistDone) / float64(snap.ChecklistTotal))
		}
		score += capPoints(len(snap.SocialHandles)*10, 20)
		switch {
		case e.activeWithin(snap, e.staleDays):
			score += 40
		case e.activeWithin(snap, 2*e.staleDays):
			score += 20
		}
	}
	return gateScore(GateRetention, score, policy)
}

// efficiencyGate: lifecycle status plus output volume (genesis) or publish
// ratio (standard).
func (e *Engine) efficiencyGate(snap models.AgentSnapshot, policy models.CohortPolicy) models.GateScore {
	score := 0
	switch snap.Status {
	case models.AgentStatusActive:
		score += 50
	case models.AgentStatusOnboarding:
		score += 30
	default:
		score += 10
	}
	if policy == models.PolicyGenesis {
		if snap.ArtifactCount > 0 {
			score += 50
		}
	} else if snap.ArtifactCount > 0 {
		ratio := float64(snap.PublishedCount) / float64(snap.ArtifactCount)
		switch {
		case ratio >= 0.5:
			score += 50
		case ratio >= 0.25:
			score += 30
		case ratio > 0:
			score += 15
		}
	}
	return gateScore(GateEfficiency, score, policy)
}

func (e *Engine) activeWithin(snap models.AgentSnapshot, days int) bool {
	if snap.LastActiveAt.IsZero() {
		return false
	}
	return e.now().Sub(snap.LastActiveAt) <= time.Duration(days)*24*time.Hour
}

func capPoints(points, limit int) int {
	if points > limit {
		return limit
	}
	return points
}

func gateScore(name string, score int, policy models.CohortPolicy) models.GateScore {
	if score > 100 {
		score = 100
	}
	threshold := passThresholds[policy][name]
	return models.GateScore{
		Name:    name,
		Score:   score,
		Passed:  score >= threshold,
		Details: fmt.Sprintf("score %d, pass threshold %d (%s)", score, threshold, policy),
	}
}

func meanScore(gates []models.GateScore) int {
	if len(gates) == 0 {
		return 0
	}
	sum := 0
	for _, g := range gates {
		sum += g.Score
	}
	return sum / len(gates)
}

// allPassed is AND semantics across gates, not an averaged pass/fail.
func allPassed(gates []models.GateScore) bool {
	for _, g := range gates {
		if !g.Passed {
			return false
		}
	}
	return true
}

func statusLabel(score int) string {
	switch {
	case score >= 85:
		return StatusExcellent
	case score >= 70:
		return StatusGood
	case score >= 50:
		return StatusConcerning
	default:
		return StatusCritical
	}
}

var genesisHints = map[string]string{
	GateDemand:     "add a display name, one artifact, or an avatar to clear the demand gate",
	GateRetention:  "complete one onboarding checklist item or record recent activity",
	GateEfficiency: "produce at least one artifact",
}

var standardHints = map[string]string{
	GateDemand:     "deepen the profile (100+ character statement, avatar, social handles) and grow the artifact library",
	GateRetention:  "finish the onboarding checklist and sustain weekly activity",
	GateEfficiency: "publish at least half of produced artifacts and keep the agent active",
}

func recommend(gates []models.GateScore, policy models.CohortPolicy) []string {
	hints := standardHints
	if policy == models.PolicyGenesis {
		hints = genesisHints
	}
	var out []string
	for _, g := range gates {
		if !g.Passed {
			if hint, ok := hints[g.Name]; ok {
				out = append(out, hint)
			}
		}
	}
	return out
}
