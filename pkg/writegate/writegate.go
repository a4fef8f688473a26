package writegate

import (
	"fmt"

	"github.com/brightseth/eden-genesis-registry-sub000/pkg/metrics"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/models"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/roles"
)

// rules maps (collection, operation) to the minimum role allowed. Registered
// at startup, never mutated at runtime. Content-authoring collections take
// the trainer tier; collections steering system behavior or money are
// admin-only for every operation. Absence means deny.
var rules = map[models.Collection]map[models.Operation]models.Role{
	models.CollectionAgent: {
		models.OpCreate: models.RoleTrainer,
		models.OpUpdate: models.RoleTrainer,
		models.OpDelete: models.RoleAdmin,
	},
	models.CollectionProfile: {
		models.OpCreate: models.RoleTrainer,
		models.OpUpdate: models.RoleTrainer,
		models.OpDelete: models.RoleAdmin,
	},
	models.CollectionLore: {
		models.OpCreate: models.RoleTrainer,
		models.OpUpdate: models.RoleTrainer,
		models.OpDelete: models.RoleAdmin,
	},
	models.CollectionMedia: {
		models.OpCreate: models.RoleTrainer,
		models.OpUpdate: models.RoleTrainer,
		models.OpDelete: models.RoleAdmin,
	},
	models.CollectionEconomics: {
		models.OpCreate: models.RoleAdmin,
		models.OpUpdate: models.RoleAdmin,
		models.OpDelete: models.RoleAdmin,
	},
	models.CollectionCapability: {
		models.OpCreate: models.RoleAdmin,
		models.OpUpdate: models.RoleAdmin,
		models.OpDelete: models.RoleAdmin,
	},
	models.CollectionStatus: {
		models.OpCreate: models.RoleAdmin,
		models.OpUpdate: models.RoleAdmin,
		models.OpDelete: models.RoleAdmin,
	},
}

// Gate authorizes writes against the static rule table.
type Gate struct {
	metrics *metrics.Registry
}

func NewGate(reg *metrics.Registry) *Gate {
	return &Gate{metrics: reg}
}

// CheckWrite resolves the rule for (collection, operation) and evaluates the
// caller's role against it. No rule means deny, never allow. An undefined
// role is a caller error and fails loudly.
func (g *Gate) CheckWrite(collection models.Collection, op models.Operation, caller models.Role) (models.WriteDecision, error) {
	decision := models.WriteDecision{Collection: collection, Operation: op}
	minimum, ok := ruleFor(collection, op)
	if !ok {
		decision.Reason = fmt.Sprintf("no write rule defined for %s/%s", collection, op)
		g.observe(decision)
		return decision, nil
	}
	meets, err := roles.MeetsMinimum(caller, minimum)
	if err != nil {
		return decision, err
	}
	decision.RequiredRole = minimum
	if !meets {
		decision.Reason = fmt.Sprintf("role %s is below required %s for %s/%s", caller, minimum, collection, op)
		g.observe(decision)
		return decision, nil
	}
	decision.Allowed = true
	g.observe(decision)
	return decision, nil
}

// AssertWritePermission raises when the decision is a denial.
func (g *Gate) AssertWritePermission(collection models.Collection, op models.Operation, caller models.Role) error {
	decision, err := g.CheckWrite(collection, op, caller)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &DeniedError{Decision: decision}
	}
	return nil
}

// DescribeGates reports, for each operation, the minimum role that would be
// allowed, derived by probing the rule with each role from lowest to highest.
func (g *Gate) DescribeGates(collection models.Collection) (models.GateMatrix, error) {
	matrix := models.GateMatrix{Collection: collection, MinimumBy: map[models.Operation]models.Role{}}
	for _, op := range models.Operations() {
		for _, role := range roles.Ascending() {
			decision, err := g.CheckWrite(collection, op, role)
			if err != nil {
				return matrix, err
			}
			if decision.Allowed {
				matrix.MinimumBy[op] = role
				break
			}
		}
	}
	return matrix, nil
}

// DeniedError carries the decision so callers can surface the required role.
type DeniedError struct {
	Decision models.WriteDecision
}

func (e *DeniedError) Error() string {
	return "write denied: " + e.Decision.Reason
}

func ruleFor(collection models.Collection, op models.Operation) (models.Role, bool) {
	ops, ok := rules[collection]
	if !ok {
		return "", false
	}
	minimum, ok := ops[op]
	return minimum, ok
}

func (g *Gate) observe(d models.WriteDecision) {
	if g.metrics == nil {
		return
	}
	g.metrics.IncWrite(string(d.Collection), string(d.Operation), d.Allowed)
}
