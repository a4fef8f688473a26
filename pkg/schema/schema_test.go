package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/brightseth/eden-genesis-registry-sub000/pkg/models"
)

func fieldsOf(errs []models.FieldError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func hasField(errs []models.FieldError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestForCollectionCoversClosedSet(t *testing.T) {
	t.Parallel()
	for _, c := range models.Collections() {
		v, err := ForCollection(c)
		if err != nil {
			t.Fatalf("ForCollection(%s): %v", c, err)
		}
		if v == nil {
			t.Fatalf("ForCollection(%s): nil validator", c)
		}
	}
}

func TestForCollectionUnknown(t *testing.T) {
	t.Parallel()
	if _, err := ForCollection(models.Collection("inventory")); !errors.Is(err, models.ErrUnknownCollection) {
		t.Fatalf("expected ErrUnknownCollection, got %v", err)
	}
}

func TestValidateAgent(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		payload map[string]any
		want    []string
	}{
		{
			name:    "empty payload misses both required fields",
			payload: map[string]any{},
			want:    []string{"handle", "displayName"},
		},
		{
			name:    "valid minimal agent",
			payload: map[string]any{"handle": "solienne", "displayName": "Solienne"},
		},
		{
			name:    "handle uppercase rejected",
			payload: map[string]any{"handle": "Solienne", "displayName": "Solienne"},
			want:    []string{"handle"},
		},
		{
			name:    "handle too short",
			payload: map[string]any{"handle": "ab", "displayName": "AB"},
			want:    []string{"handle"},
		},
		{
			name:    "display name too long",
			payload: map[string]any{"handle": "abraham", "displayName": strings.Repeat("x", 65)},
			want:    []string{"displayName"},
		},
		{
			name:    "handle wrong type",
			payload: map[string]any{"handle": 7, "displayName": "Seven"},
			want:    []string{"handle"},
		},
		{
			name:    "bad status enum",
			payload: map[string]any{"handle": "abraham", "displayName": "Abraham", "status": "SLEEPING"},
			want:    []string{"status"},
		},
		{
			name:    "valid with optional fields",
			payload: map[string]any{"handle": "abraham", "displayName": "Abraham", "status": "ACTIVE", "trainerId": "t-1"},
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			errs := validateAgent(tc.payload)
			if len(tc.want) == 0 {
				if len(errs) != 0 {
					t.Fatalf("expected no errors, got %v", errs)
				}
				return
			}
			for _, f := range tc.want {
				if !hasField(errs, f) {
					t.Fatalf("expected error for field %q, got %v", f, fieldsOf(errs))
				}
			}
		})
	}
}

func TestValidateEconomics(t *testing.T) {
	t.Parallel()
	valid := map[string]any{"agentId": "a-1", "tokenSymbol": "ABRA", "revenueSplit": 25}
	if errs := validateEconomics(valid); len(errs) != 0 {
		t.Fatalf("expected valid economics payload, got %v", errs)
	}
	cases := []struct {
		name    string
		payload map[string]any
		field   string
	}{
		{"missing revenue split", map[string]any{"agentId": "a-1", "tokenSymbol": "ABRA"}, "revenueSplit"},
		{"split out of range", map[string]any{"agentId": "a-1", "tokenSymbol": "ABRA", "revenueSplit": 101}, "revenueSplit"},
		{"split wrong type", map[string]any{"agentId": "a-1", "tokenSymbol": "ABRA", "revenueSplit": "half"}, "revenueSplit"},
		{"lowercase symbol", map[string]any{"agentId": "a-1", "tokenSymbol": "abra", "revenueSplit": 10}, "tokenSymbol"},
		{"symbol too long", map[string]any{"agentId": "a-1", "tokenSymbol": "ABRACADABRA", "revenueSplit": 10}, "tokenSymbol"},
		{"missing agent id", map[string]any{"tokenSymbol": "ABRA", "revenueSplit": 10}, "agentId"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			errs := validateEconomics(tc.payload)
			if !hasField(errs, tc.field) {
				t.Fatalf("expected error for field %q, got %v", tc.field, fieldsOf(errs))
			}
		})
	}
}

func TestValidateMedia(t *testing.T) {
	t.Parallel()
	valid := map[string]any{"agentId": "a-1", "url": "https://cdn.example/img.png", "kind": "image"}
	if errs := validateMedia(valid); len(errs) != 0 {
		t.Fatalf("expected valid media payload, got %v", errs)
	}
	if errs := validateMedia(map[string]any{"agentId": "a-1", "url": "ftp://x", "kind": "image"}); !hasField(errs, "url") {
		t.Fatalf("expected url error, got %v", errs)
	}
	if errs := validateMedia(map[string]any{"agentId": "a-1", "url": "https://x", "kind": "hologram"}); !hasField(errs, "kind") {
		t.Fatalf("expected kind error, got %v", errs)
	}
}

func TestValidateStatus(t *testing.T) {
	t.Parallel()
	if errs := validateStatus(map[string]any{"agentId": "a-1", "status": "archived"}); len(errs) != 0 {
		t.Fatalf("expected case-insensitive status enum, got %v", errs)
	}
	if errs := validateStatus(map[string]any{"agentId": "a-1", "status": "GONE"}); !hasField(errs, "status") {
		t.Fatalf("expected status error, got %v", errs)
	}
}

func TestValidateProfileSocialHandlesShape(t *testing.T) {
	t.Parallel()
	if errs := validateProfile(map[string]any{"agentId": "a-1", "socialHandles": "not-a-list"}); !hasField(errs, "socialHandles") {
		t.Fatalf("expected socialHandles error, got %v", errs)
	}
	if errs := validateProfile(map[string]any{"agentId": "a-1", "socialHandles": []any{"@abraham"}}); len(errs) != 0 {
		t.Fatalf("expected valid profile, got %v", errs)
	}
}
