package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/brightseth/eden-genesis-registry-sub000/pkg/models"
)

// Validator checks a payload's structure and returns failures as data.
type Validator func(payload map[string]any) []models.FieldError

var handleRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{2,31}$`)

var agentStatuses = []string{
	models.AgentStatusActive,
	models.AgentStatusOnboarding,
	models.AgentStatusArchived,
}

var mediaKinds = []string{"image", "video", "audio", "text"}

// ForCollection returns the validator registered for a collection. Every
// collection in the closed set has exactly one; an unknown collection is a
// configuration error surfaced to the caller.
func ForCollection(c models.Collection) (Validator, error) {
	v, ok := validators[c]
	if !ok {
		return nil, fmt.Errorf("%w: no schema for %q", models.ErrUnknownCollection, c)
	}
	return v, nil
}

var validators = map[models.Collection]Validator{
	models.CollectionAgent:      validateAgent,
	models.CollectionProfile:    validateProfile,
	models.CollectionLore:       validateLore,
	models.CollectionMedia:      validateMedia,
	models.CollectionEconomics:  validateEconomics,
	models.CollectionCapability: validateCapability,
	models.CollectionStatus:     validateStatus,
}

func validateAgent(p map[string]any) []models.FieldError {
	var errs []models.FieldError
	if handle, e := requireString(p, "handle"); e != nil {
		errs = append(errs, *e)
	} else if !handleRe.MatchString(handle) {
		errs = append(errs, fieldErr("handle", "pattern", "must be 3-32 lowercase letters, digits or hyphens"))
	}
	if _, e := requireString(p, "displayName"); e != nil {
		errs = append(errs, *e)
	} else {
		errs = appendMaxLen(errs, p, "displayName", 64)
	}
	errs = appendOptionalEnum(errs, p, "status", agentStatuses)
	errs = appendOptionalString(errs, p, "trainerId", 64)
	return errs
}

func validateProfile(p map[string]any) []models.FieldError {
	var errs []models.FieldError
	if _, e := requireString(p, "agentId"); e != nil {
		errs = append(errs, *e)
	}
	errs = appendOptionalString(errs, p, "statement", 2000)
	errs = appendOptionalString(errs, p, "avatarUrl", 512)
	if raw, ok := p["socialHandles"]; ok {
		if _, isList := raw.([]any); !isList {
			errs = append(errs, fieldErr("socialHandles", "shape", "must be a list of strings"))
		}
	}
	return errs
}

func validateLore(p map[string]any) []models.FieldError {
	var errs []models.FieldError
	if _, e := requireString(p, "agentId"); e != nil {
		errs = append(errs, *e)
	}
	if _, e := requireString(p, "title"); e != nil {
		errs = append(errs, *e)
	} else {
		errs = appendMaxLen(errs, p, "title", 120)
	}
	if _, e := requireString(p, "body"); e != nil {
		errs = append(errs, *e)
	}
	return errs
}

func validateMedia(p map[string]any) []models.FieldError {
	var errs []models.FieldError
	if _, e := requireString(p, "agentId"); e != nil {
		errs = append(errs, *e)
	}
	if url, e := requireString(p, "url"); e != nil {
		errs = append(errs, *e)
	} else if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		errs = append(errs, fieldErr("url", "shape", "must be an http(s) URL"))
	}
	if kind, e := requireString(p, "kind"); e != nil {
		errs = append(errs, *e)
	} else if !containsFold(mediaKinds, kind) {
		errs = append(errs, fieldErr("kind", "enum", "must be one of "+strings.Join(mediaKinds, ", ")))
	}
	return errs
}

func validateEconomics(p map[string]any) []models.FieldError {
	var errs []models.FieldError
	if _, e := requireString(p, "agentId"); e != nil {
		errs = append(errs, *e)
	}
	if sym, e := requireString(p, "tokenSymbol"); e != nil {
		errs = append(errs, *e)
	} else if len(sym) > 8 || sym != strings.ToUpper(sym) {
		errs = append(errs, fieldErr("tokenSymbol", "shape", "must be uppercase, at most 8 characters"))
	}
	if raw, ok := p["revenueSplit"]; ok {
		if n, isNum := asFloat(raw); !isNum {
			errs = append(errs, fieldErr("revenueSplit", "shape", "must be a number"))
		} else if n < 0 || n > 100 {
			errs = append(errs, fieldErr("revenueSplit", "range", "must be between 0 and 100"))
		}
	} else {
		errs = append(errs, fieldErr("revenueSplit", "required", "field is required"))
	}
	errs = appendOptionalString(errs, p, "walletAddress", 128)
	return errs
}

func validateCapability(p map[string]any) []models.FieldError {
	var errs []models.FieldError
	if _, e := requireString(p, "agentId"); e != nil {
		errs = append(errs, *e)
	}
	if _, e := requireString(p, "name"); e != nil {
		errs = append(errs, *e)
	}
	if raw, ok := p["enabled"]; ok {
		if _, isBool := raw.(bool); !isBool {
			errs = append(errs, fieldErr("enabled", "shape", "must be a boolean"))
		}
	}
	return errs
}

func validateStatus(p map[string]any) []models.FieldError {
	var errs []models.FieldError
	if _, e := requireString(p, "agentId"); e != nil {
		errs = append(errs, *e)
	}
	if st, e := requireString(p, "status"); e != nil {
		errs = append(errs, *e)
	} else if !containsFold(agentStatuses, st) {
		errs = append(errs, fieldErr("status", "enum", "must be one of "+strings.Join(agentStatuses, ", ")))
	}
	return errs
}

func requireString(p map[string]any, field string) (string, *models.FieldError) {
	raw, ok := p[field]
	if !ok || raw == nil {
		e := fieldErr(field, "required", "field is required")
		return "", &e
	}
	s, isStr := raw.(string)
	if !isStr {
		e := fieldErr(field, "shape", "must be a string")
		return "", &e
	}
	if strings.TrimSpace(s) == "" {
		e := fieldErr(field, "required", "must not be empty")
		return "", &e
	}
	return s, nil
}

func appendOptionalString(errs []models.FieldError, p map[string]any, field string, maxLen int) []models.FieldError {
	raw, ok := p[field]
	if !ok || raw == nil {
		return errs
	}
	s, isStr := raw.(string)
	if !isStr {
		return append(errs, fieldErr(field, "shape", "must be a string"))
	}
	if len(s) > maxLen {
		return append(errs, fieldErr(field, "length", fmt.Sprintf("must be at most %d characters", maxLen)))
	}
	return errs
}

func appendMaxLen(errs []models.FieldError, p map[string]any, field string, maxLen int) []models.FieldError {
	if s, ok := p[field].(string); ok && len(s) > maxLen {
		return append(errs, fieldErr(field, "length", fmt.Sprintf("must be at most %d characters", maxLen)))
	}
	return errs
}

func appendOptionalEnum(errs []models.FieldError, p map[string]any, field string, allowed []string) []models.FieldError {
	raw, ok := p[field]
	if !ok || raw == nil {
		return errs
	}
	s, isStr := raw.(string)
	if !isStr {
		return append(errs, fieldErr(field, "shape", "must be a string"))
	}
	if !containsFold(allowed, s) {
		return append(errs, fieldErr(field, "enum", "must be one of "+strings.Join(allowed, ", ")))
	}
	return errs
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

func asFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func fieldErr(field, rule, message string) models.FieldError {
	return models.FieldError{Field: field, Rule: rule, Message: message}
}
