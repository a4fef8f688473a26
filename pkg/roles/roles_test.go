package roles

import (
	"errors"
	"testing"

	"github.com/brightseth/eden-genesis-registry-sub000/pkg/models"
)

func TestMeetsMinimumAdminPassesEverything(t *testing.T) {
	t.Parallel()
	for _, minimum := range All() {
		ok, err := MeetsMinimum(models.RoleAdmin, minimum)
		if err != nil {
			t.Fatalf("MeetsMinimum(ADMIN, %s): %v", minimum, err)
		}
		if !ok {
			t.Fatalf("expected ADMIN to meet minimum %s", minimum)
		}
	}
}

func TestMeetsMinimumGuestFailsEverythingAboveGuest(t *testing.T) {
	t.Parallel()
	for _, minimum := range All() {
		ok, err := MeetsMinimum(models.RoleGuest, minimum)
		if err != nil {
			t.Fatalf("MeetsMinimum(GUEST, %s): %v", minimum, err)
		}
		if minimum == models.RoleGuest {
			if !ok {
				t.Fatal("expected GUEST to meet minimum GUEST")
			}
			continue
		}
		if ok {
			t.Fatalf("expected GUEST to fail minimum %s", minimum)
		}
	}
}

func TestCuratorialTierSharesOneRank(t *testing.T) {
	t.Parallel()
	tier := []models.Role{models.RoleCurator, models.RoleCollector, models.RoleInvestor}
	for _, a := range tier {
		for _, b := range tier {
			ok, err := MeetsMinimum(a, b)
			if err != nil {
				t.Fatalf("MeetsMinimum(%s, %s): %v", a, b, err)
			}
			if !ok {
				t.Fatalf("expected %s to meet minimum %s", a, b)
			}
		}
	}
	for _, r := range tier {
		if ok, _ := MeetsMinimum(r, models.RoleAdmin); ok {
			t.Fatalf("expected %s below ADMIN", r)
		}
		if ok, _ := MeetsMinimum(models.RoleTrainer, r); ok {
			t.Fatalf("expected TRAINER below %s", r)
		}
	}
}

func TestMeetsMinimumUnknownRoleFailsLoudly(t *testing.T) {
	t.Parallel()
	if _, err := MeetsMinimum(models.Role("WIZARD"), models.RoleGuest); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole for unknown caller, got %v", err)
	}
	if _, err := MeetsMinimum(models.RoleAdmin, models.Role("WIZARD")); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole for unknown minimum, got %v", err)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want models.Role
		ok   bool
	}{
		{"admin", models.RoleAdmin, true},
		{"  Trainer ", models.RoleTrainer, true},
		{"COLLECTOR", models.RoleCollector, true},
		{"", "", false},
		{"superuser", "", false},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("Parse(%q) = %s, want %s", tc.in, got, tc.want)
			}
			continue
		}
		if !errors.Is(err, ErrUnknownRole) {
			t.Fatalf("Parse(%q): expected ErrUnknownRole, got %v", tc.in, err)
		}
	}
}

func TestAscendingCoversEveryRankOnce(t *testing.T) {
	t.Parallel()
	seen := map[int]bool{}
	prev := -1
	for _, r := range Ascending() {
		rk, ok := rank[r]
		if !ok {
			t.Fatalf("Ascending includes undefined role %s", r)
		}
		if rk <= prev {
			t.Fatalf("Ascending not strictly increasing at %s", r)
		}
		if seen[rk] {
			t.Fatalf("rank %d listed twice", rk)
		}
		seen[rk] = true
		prev = rk
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct ranks, got %d", len(seen))
	}
}
