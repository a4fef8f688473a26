package roles

import (
	"errors"
	"fmt"
	"strings"

	"github.com/brightseth/eden-genesis-registry-sub000/pkg/models"
)

var ErrUnknownRole = errors.New("unknown role")

// rank is a total preorder: ADMIN is the unique maximum, GUEST the unique
// minimum, and the curator/collector/investor tier shares one rank.
var rank = map[models.Role]int{
	models.RoleGuest:     0,
	models.RoleTrainer:   1,
	models.RoleCurator:   2,
	models.RoleCollector: 2,
	models.RoleInvestor:  2,
	models.RoleAdmin:     3,
}

// Ascending lists one role per rank, lowest first. Used to probe gate
// minimums without duplicating the rule table.
func Ascending() []models.Role {
	return []models.Role{models.RoleGuest, models.RoleTrainer, models.RoleCurator, models.RoleAdmin}
}

// All lists every defined role.
func All() []models.Role {
	return []models.Role{
		models.RoleGuest,
		models.RoleTrainer,
		models.RoleCurator,
		models.RoleCollector,
		models.RoleInvestor,
		models.RoleAdmin,
	}
}

func Parse(raw string) (models.Role, error) {
	r := models.Role(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := rank[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return r, nil
}

// MeetsMinimum reports whether role outranks or equals minimum. Calling with
// an undefined role is a caller error and fails loudly rather than defaulting
// to the lowest rank.
func MeetsMinimum(role, minimum models.Role) (bool, error) {
	r, ok := rank[role]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	m, ok := rank[minimum]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownRole, minimum)
	}
	return r >= m, nil
}
