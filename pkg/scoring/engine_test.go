package scoring

import (
	"strings"
	"testing"
	"time"

	"github.com/brightseth/eden-genesis-registry-sub000/pkg/config"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/models"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return NewEngine(cfg)
}

func minimalGenesisAgent() models.AgentSnapshot {
	return models.AgentSnapshot{
		ID:            "agent-1",
		Handle:        "abraham",
		DisplayName:   "Abraham",
		Status:        models.AgentStatusOnboarding,
		GenesisCohort: true,
		ArtifactCount: 1,
	}
}

func TestGenesisMinimalPresencePassesAllGates(t *testing.T) {
	t.Parallel()
	engine := newEngine(t)
	card := engine.EvaluateLaunch(minimalGenesisAgent())

	if card.Policy != models.PolicyGenesis {
		t.Fatalf("expected GENESIS policy, got %s", card.Policy)
	}
	if !card.Passed {
		t.Fatalf("expected minimal genesis agent to pass, got %+v", card.Gates)
	}
	for _, g := range card.Gates {
		if !g.Passed {
			t.Fatalf("expected gate %s to pass under GENESIS, score %d", g.Name, g.Score)
		}
	}
	if len(card.Recommendations) != 0 {
		t.Fatalf("passing card must not recommend, got %v", card.Recommendations)
	}
}

func TestSameRecordFailsUnderStandard(t *testing.T) {
	t.Parallel()
	engine := newEngine(t)
	snap := minimalGenesisAgent()
	snap.GenesisCohort = false
	card := engine.EvaluateLaunch(snap)

	if card.Policy != models.PolicyStandard {
		t.Fatalf("expected STANDARD policy, got %s", card.Policy)
	}
	if card.Passed {
		t.Fatal("expected minimal record to fail at least one STANDARD gate")
	}
	if len(card.Recommendations) == 0 {
		t.Fatal("failing card must carry recommendations")
	}
}

func TestGenesisOverrideSetSelectsRelaxedPolicy(t *testing.T) {
	t.Setenv("GENESIS_COHORT_IDS", "agent-legacy")
	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	engine := NewEngine(cfg)

	snap := minimalGenesisAgent()
	snap.ID = "agent-legacy"
	snap.GenesisCohort = false
	if got := engine.PolicyFor(snap); got != models.PolicyGenesis {
		t.Fatalf("expected override id to select GENESIS, got %s", got)
	}
	snap.ID = "agent-other"
	if got := engine.PolicyFor(snap); got != models.PolicyStandard {
		t.Fatalf("expected STANDARD without flag or override, got %s", got)
	}
}

func richStandardAgent(now time.Time) models.AgentSnapshot {
	return models.AgentSnapshot{
		ID:             "agent-2",
		Handle:         "solienne",
		DisplayName:    "Solienne",
		Status:         models.AgentStatusActive,
		Bio:            strings.Repeat("practice statement ", 10),
		AvatarURL:      "https://cdn.example/solienne.png",
		SocialHandles:  []string{"@solienne", "solienne.eth"},
		ChecklistDone:  10,
		ChecklistTotal: 10,
		ArtifactCount:  12,
		PublishedCount: 8,
		HasEconomics:   true,
		LastActiveAt:   now.Add(-24 * time.Hour),
	}
}

func TestStandardCompleteAgentPasses(t *testing.T) {
	t.Parallel()
	engine := newEngine(t)
	now := time.Now().UTC()
	card := engine.EvaluateLaunch(richStandardAgent(now))

	if card.Policy != models.PolicyStandard {
		t.Fatalf("expected STANDARD policy, got %s", card.Policy)
	}
	if !card.Passed {
		t.Fatalf("expected complete agent to pass STANDARD, gates %+v", card.Gates)
	}
	if card.Score < 85 {
		t.Fatalf("expected high mean score, got %d", card.Score)
	}
}

func TestScoreIsMeanAndPassIsConjunction(t *testing.T) {
	t.Parallel()
	engine := newEngine(t)
	// Strong demand and retention, zero published output. High mean is not
	// enough when one gate fails.
	snap := richStandardAgent(time.Now().UTC())
	snap.PublishedCount = 0
	card := engine.EvaluateLaunch(snap)

	sum := 0
	failed := false
	for _, g := range card.Gates {
		sum += g.Score
		if !g.Passed {
			failed = true
		}
	}
	if card.Score != sum/len(card.Gates) {
		t.Fatalf("score %d is not the mean of gate scores %v", card.Score, card.Gates)
	}
	if !failed {
		t.Fatalf("expected efficiency gate to fail without publishes, gates %+v", card.Gates)
	}
	if card.Passed {
		t.Fatal("one failed gate must fail the card")
	}
}

func TestPerformanceStatusLabels(t *testing.T) {
	t.Parallel()
	cases := []struct {
		score int
		want  string
	}{
		{92, StatusExcellent},
		{85, StatusExcellent},
		{84, StatusGood},
		{70, StatusGood},
		{69, StatusConcerning},
		{50, StatusConcerning},
		{49, StatusCritical},
		{0, StatusCritical},
	}
	for _, tc := range cases {
		if got := statusLabel(tc.score); got != tc.want {
			t.Fatalf("statusLabel(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestPerformanceStalenessAlertIndependentOfScore(t *testing.T) {
	t.Parallel()
	engine := newEngine(t)
	now := time.Now().UTC()

	healthy := richStandardAgent(now)
	healthy.LastActiveAt = now.Add(-30 * 24 * time.Hour)
	card := engine.EvaluatePerformance(healthy)
	if len(card.Alerts) == 0 {
		t.Fatal("expected staleness alert despite strong profile signals")
	}

	fresh := richStandardAgent(now)
	card = engine.EvaluatePerformance(fresh)
	if len(card.Alerts) != 0 {
		t.Fatalf("unexpected alerts for recently active agent: %v", card.Alerts)
	}
	if card.StatusLabel == "" {
		t.Fatal("performance card must carry a status label")
	}
}

func TestPerformanceNoActivityRecorded(t *testing.T) {
	t.Parallel()
	engine := newEngine(t)
	snap := minimalGenesisAgent()
	card := engine.EvaluatePerformance(snap)
	if len(card.Alerts) == 0 {
		t.Fatal("expected alert when no activity was ever recorded")
	}
}

func TestStandardPointCapsAreExact(t *testing.T) {
	t.Parallel()
	engine := newEngine(t)
	// Artifact points cap at 50 and social points at 20, so an agent with
	// nothing but volume lands on exactly those caps.
	snap := models.AgentSnapshot{
		ID:            "agent-3",
		Handle:        "koru",
		Status:        models.AgentStatusArchived,
		ArtifactCount: 30,
		SocialHandles: []string{"a", "b", "c", "d", "e"},
	}
	card := engine.EvaluateLaunch(snap)

	for _, g := range card.Gates {
		switch g.Name {
		case GateDemand:
			if g.Score != 70 {
				t.Fatalf("demand = %d, want 50 capped artifact points + 20 capped social points", g.Score)
			}
		case GateRetention:
			if g.Score != 20 {
				t.Fatalf("retention = %d, want 20 capped social points", g.Score)
			}
		}
	}
}

func TestGateScoresClampedToHundred(t *testing.T) {
	t.Parallel()
	engine := newEngine(t)
	snap := richStandardAgent(time.Now().UTC())
	snap.ArtifactCount = 500
	snap.PublishedCount = 400
	snap.SocialHandles = []string{"a", "b", "c", "d", "e"}
	card := engine.EvaluateLaunch(snap)
	for _, g := range card.Gates {
		if g.Score > 100 {
			t.Fatalf("gate %s score %d exceeds 100", g.Name, g.Score)
		}
	}
}
