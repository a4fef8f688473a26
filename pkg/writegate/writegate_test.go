package writegate

import (
	"errors"
	"testing"

	"github.com/brightseth/eden-genesis-registry-sub000/pkg/metrics"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/models"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/roles"
)

func TestCheckWriteProfileTier(t *testing.T) {
	t.Parallel()
	gate := NewGate(metrics.NewRegistry())

	denied, err := gate.CheckWrite(models.CollectionProfile, models.OpUpdate, models.RoleGuest)
	if err != nil {
		t.Fatalf("CheckWrite: %v", err)
	}
	if denied.Allowed {
		t.Fatal("expected GUEST denied for profile UPDATE")
	}
	if denied.RequiredRole != models.RoleTrainer {
		t.Fatalf("expected required role TRAINER, got %s", denied.RequiredRole)
	}
	if denied.Reason == "" {
		t.Fatal("denial must carry a reason")
	}

	allowed, err := gate.CheckWrite(models.CollectionProfile, models.OpUpdate, models.RoleAdmin)
	if err != nil {
		t.Fatalf("CheckWrite: %v", err)
	}
	if !allowed.Allowed {
		t.Fatalf("expected ADMIN allowed, got %+v", allowed)
	}
}

func TestCheckWriteDefaultDeny(t *testing.T) {
	t.Parallel()
	gate := NewGate(nil)
	decision, err := gate.CheckWrite(models.Collection("inventory"), models.OpCreate, models.RoleAdmin)
	if err != nil {
		t.Fatalf("CheckWrite: %v", err)
	}
	if decision.Allowed {
		t.Fatal("unregistered pair must deny, even for ADMIN")
	}
	if decision.Reason == "" || decision.RequiredRole != "" {
		t.Fatalf("expected no-rule denial, got %+v", decision)
	}
}

func TestCheckWriteUnknownRoleFailsLoudly(t *testing.T) {
	t.Parallel()
	gate := NewGate(nil)
	if _, err := gate.CheckWrite(models.CollectionAgent, models.OpCreate, models.Role("WIZARD")); !errors.Is(err, roles.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestAdminAllowedEverywhere(t *testing.T) {
	t.Parallel()
	gate := NewGate(nil)
	for _, c := range models.Collections() {
		for _, op := range models.Operations() {
			decision, err := gate.CheckWrite(c, op, models.RoleAdmin)
			if err != nil {
				t.Fatalf("CheckWrite(%s, %s): %v", c, op, err)
			}
			if !decision.Allowed {
				t.Fatalf("expected ADMIN allowed for %s/%s", c, op)
			}
		}
	}
}

func TestSystemCollectionsAreAdminOnly(t *testing.T) {
	t.Parallel()
	gate := NewGate(nil)
	for _, c := range []models.Collection{models.CollectionEconomics, models.CollectionCapability, models.CollectionStatus} {
		for _, op := range models.Operations() {
			for _, role := range []models.Role{models.RoleTrainer, models.RoleCurator, models.RoleCollector, models.RoleInvestor} {
				decision, err := gate.CheckWrite(c, op, role)
				if err != nil {
					t.Fatalf("CheckWrite(%s, %s, %s): %v", c, op, role, err)
				}
				if decision.Allowed {
					t.Fatalf("expected %s denied for %s/%s", role, c, op)
				}
			}
		}
	}
}

func TestDeleteRequiresAdminOnContentCollections(t *testing.T) {
	t.Parallel()
	gate := NewGate(nil)
	for _, c := range []models.Collection{models.CollectionAgent, models.CollectionProfile, models.CollectionLore, models.CollectionMedia} {
		create, err := gate.CheckWrite(c, models.OpCreate, models.RoleTrainer)
		if err != nil || !create.Allowed {
			t.Fatalf("expected TRAINER create on %s, got %+v err=%v", c, create, err)
		}
		del, err := gate.CheckWrite(c, models.OpDelete, models.RoleTrainer)
		if err != nil || del.Allowed {
			t.Fatalf("expected TRAINER denied delete on %s, got %+v err=%v", c, del, err)
		}
	}
}

func TestAssertWritePermission(t *testing.T) {
	t.Parallel()
	gate := NewGate(nil)
	if err := gate.AssertWritePermission(models.CollectionAgent, models.OpCreate, models.RoleTrainer); err != nil {
		t.Fatalf("AssertWritePermission: %v", err)
	}
	err := gate.AssertWritePermission(models.CollectionAgent, models.OpDelete, models.RoleTrainer)
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected *DeniedError, got %v", err)
	}
	if denied.Decision.RequiredRole != models.RoleAdmin {
		t.Fatalf("expected required role ADMIN in error, got %+v", denied.Decision)
	}
}

func TestDescribeGates(t *testing.T) {
	t.Parallel()
	gate := NewGate(metrics.NewRegistry())
	matrix, err := gate.DescribeGates(models.CollectionMedia)
	if err != nil {
		t.Fatalf("DescribeGates: %v", err)
	}
	if matrix.MinimumBy[models.OpCreate] != models.RoleTrainer {
		t.Fatalf("expected TRAINER minimum for create, got %s", matrix.MinimumBy[models.OpCreate])
	}
	if matrix.MinimumBy[models.OpDelete] != models.RoleAdmin {
		t.Fatalf("expected ADMIN minimum for delete, got %s", matrix.MinimumBy[models.OpDelete])
	}
}
