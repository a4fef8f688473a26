package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Collection is the closed set of logical data domains the registry stores.
type Collection string

const (
	CollectionAgent      Collection = "agent"
	CollectionProfile    Collection = "profile"
	CollectionLore       Collection = "lore"
	CollectionMedia      Collection = "media"
	CollectionEconomics  Collection = "economics"
	CollectionCapability Collection = "capability"
	CollectionStatus     Collection = "status"
)

var ErrUnknownCollection = errors.New("unknown collection")

// Collections lists every known collection in stable order.
func Collections() []Collection {
	return []Collection{
		CollectionAgent,
		CollectionProfile,
		CollectionLore,
		CollectionMedia,
		CollectionEconomics,
		CollectionCapability,
		CollectionStatus,
	}
}

func ParseCollection(raw string) (Collection, error) {
	c := Collection(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case CollectionAgent, CollectionProfile, CollectionLore, CollectionMedia,
		CollectionEconomics, CollectionCapability, CollectionStatus:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCollection, raw)
	}
}

// Operation is a write kind against a collection.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

var ErrUnknownOperation = errors.New("unknown operation")

func Operations() []Operation {
	return []Operation{OpCreate, OpUpdate, OpDelete}
}

func ParseOperation(raw string) (Operation, error) {
	op := Operation(strings.ToUpper(strings.TrimSpace(raw)))
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return op, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, raw)
	}
}

// EnforcementLevel is the strictness applied to schema validation.
type EnforcementLevel string

const (
	LevelOff     EnforcementLevel = "OFF"
	LevelWarn    EnforcementLevel = "WARN"
	LevelEnforce EnforcementLevel = "ENFORCE"
)

func ParseEnforcementLevel(raw string) (EnforcementLevel, bool) {
	switch EnforcementLevel(strings.ToUpper(strings.TrimSpace(raw))) {
	case LevelOff:
		return LevelOff, true
	case LevelWarn:
		return LevelWarn, true
	case LevelEnforce:
		return LevelEnforce, true
	default:
		return "", false
	}
}

// Role is an identity classification resolved upstream of this engine.
type Role string

const (
	RoleGuest     Role = "GUEST"
	RoleTrainer   Role = "TRAINER"
	RoleCurator   Role = "CURATOR"
	RoleCollector Role = "COLLECTOR"
	RoleInvestor  Role = "INVESTOR"
	RoleAdmin     Role = "ADMIN"
)

// FieldError is one structural validation failure, returned as data.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

type ValidationOutcome struct {
	Collection Collection       `json:"collection"`
	Level      EnforcementLevel `json:"level"`
	Valid      bool             `json:"valid"`
	Bypassed   bool             `json:"bypassed"`
	Errors     []FieldError     `json:"errors,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
}

type WriteDecision struct {
	Allowed      bool       `json:"allowed"`
	Reason       string     `json:"reason,omitempty"`
	RequiredRole Role       `json:"required_role,omitempty"`
	Collection   Collection `json:"collection"`
	Operation    Operation  `json:"operation"`
}

// GateMatrix reports, per operation, the lowest role a collection admits.
type GateMatrix struct {
	Collection Collection         `json:"collection"`
	MinimumBy  map[Operation]Role `json:"minimum_role_by_operation"`
}

type ConsistencyResult struct {
	Name     string             `json:"name"`
	Passed   bool               `json:"passed"`
	Critical bool               `json:"critical"`
	Details  string             `json:"details"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
	Errors   []string           `json:"errors,omitempty"`
	Elapsed  time.Duration      `json:"elapsed_ns"`
	RanAt    time.Time          `json:"ran_at"`
}

type ConsistencyReport struct {
	ReportID        string              `json:"report_id"`
	Timestamp       time.Time           `json:"timestamp"`
	OverallHealth   int                 `json:"overall_health"`
	CheckResults    []ConsistencyResult `json:"check_results"`
	Recommendations []string            `json:"recommendations,omitempty"`
}

type CheckInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Critical    bool   `json:"critical"`
}

type Alert struct {
	AlertID  string    `json:"alert_id"`
	Check    string    `json:"check"`
	Severity string    `json:"severity"`
	Details  string    `json:"details"`
	Errors   []string  `json:"errors,omitempty"`
	RaisedAt time.Time `json:"raised_at"`
}

// CohortPolicy selects the scoring thresholds for a record.
type CohortPolicy string

const (
	PolicyGenesis  CohortPolicy = "GENESIS"
	PolicyStandard CohortPolicy = "STANDARD"
)

type GateScore struct {
	Name    string `json:"name"`
	Score   int    `json:"score"`
	Passed  bool   `json:"passed"`
	Details string `json:"details,omitempty"`
}

type Scorecard struct {
	AgentID         string       `json:"agent_id"`
	Policy          CohortPolicy `json:"policy"`
	Score           int          `json:"score"`
	Passed          bool         `json:"passed"`
	StatusLabel     string       `json:"status_label,omitempty"`
	Gates           []GateScore  `json:"gates"`
	Recommendations []string     `json:"recommendations,omitempty"`
	Alerts          []string     `json:"alerts,omitempty"`
	GeneratedAt     time.Time    `json:"generated_at"`
}

// AgentSnapshot is the read-only view the scorer and checks compute from.
// Fetched in one pass; scoring never goes back to the store mid-computation.
type AgentSnapshot struct {
	ID             string    `json:"id"`
	Handle         string    `json:"handle"`
	DisplayName    string    `json:"display_name"`
	Status         string    `json:"status"`
	TrainerID      string    `json:"trainer_id,omitempty"`
	GenesisCohort  bool      `json:"genesis_cohort"`
	Bio            string    `json:"bio,omitempty"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	SocialHandles  []string  `json:"social_handles,omitempty"`
	ChecklistDone  int       `json:"checklist_done"`
	ChecklistTotal int       `json:"checklist_total"`
	ArtifactCount  int       `json:"artifact_count"`
	PublishedCount int       `json:"published_count"`
	HasEconomics   bool      `json:"has_economics"`
	CreatedAt      time.Time `json:"created_at"`
	LastActiveAt   time.Time `json:"last_active_at"`
}

// Agent lifecycle states as stored in the registry.
const (
	AgentStatusActive     = "ACTIVE"
	AgentStatusOnboarding = "ONBOARDING"
	AgentStatusArchived   = "ARCHIVED"
)
