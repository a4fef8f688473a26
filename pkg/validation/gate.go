package validation

import (
	"fmt"
	"log"
	"strings"

	"github.com/brightseth/eden-genesis-registry-sub000/pkg/config"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/metrics"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/models"
	"github.com/brightseth/eden-genesis-registry-sub000/pkg/schema"
)

// Gate applies schema validation under the configured enforcement level.
// Safe for concurrent use: configuration is immutable after construction and
// the only side effect is metrics emission.
type Gate struct {
	cfg     *config.Config
	metrics *metrics.Registry
}

func NewGate(cfg *config.Config, reg *metrics.Registry) *Gate {
	return &Gate{cfg: cfg, metrics: reg}
}

// Validate resolves the enforcement level and bypass switches for the
// collection, then evaluates the payload against its schema. Failures are
// data, never errors; the error return is reserved for unknown collections.
func (g *Gate) Validate(collection models.Collection, payload map[string]any) (models.ValidationOutcome, error) {
	validator, err := schema.ForCollection(collection)
	if err != nil {
		return models.ValidationOutcome{}, err
	}
	level := g.cfg.LevelFor(collection)
	outcome := models.ValidationOutcome{Collection: collection, Level: level, Valid: true}

	if bypass := g.cfg.BypassFor(collection); level == models.LevelOff || bypass {
		outcome.Bypassed = true
		if bypass {
			log.Printf("validation bypass active for collection %q", collection)
		}
		g.observe(outcome)
		return outcome, nil
	}

	errs := validator(payload)
	if len(errs) == 0 {
		g.observe(outcome)
		return outcome, nil
	}

	switch level {
	case models.LevelWarn:
		// Caller is let through; the error detail rides along as warnings.
		outcome.Errors = errs
		outcome.Warnings = stringify(errs)
	default:
		outcome.Valid = false
		outcome.Errors = errs
	}
	g.observe(outcome)
	return outcome, nil
}

// ValidateDelete confirms the collection is known but skips payload
// evaluation. A delete names a record, it does not carry a document, so
// schema enforcement has nothing to check.
func (g *Gate) ValidateDelete(collection models.Collection) (models.ValidationOutcome, error) {
	if _, err := schema.ForCollection(collection); err != nil {
		return models.ValidationOutcome{}, err
	}
	outcome := models.ValidationOutcome{Collection: collection, Level: g.cfg.LevelFor(collection), Valid: true}
	g.observe(outcome)
	return outcome, nil
}

// AssertValid is the only path that turns a failed validation into a hard
// failure. Callers opt into fail-fast semantics explicitly.
func (g *Gate) AssertValid(collection models.Collection, payload map[string]any) (models.ValidationOutcome, error) {
	outcome, err := g.Validate(collection, payload)
	if err != nil {
		return outcome, err
	}
	if !outcome.Valid {
		return outcome, &Error{Outcome: outcome}
	}
	return outcome, nil
}

// Error wraps an invalid outcome for the assert path.
type Error struct {
	Outcome models.ValidationOutcome
}

func (e *Error) Error() string {
	fields := make([]string, 0, len(e.Outcome.Errors))
	for _, fe := range e.Outcome.Errors {
		fields = append(fields, fe.String())
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Outcome.Collection, strings.Join(fields, "; "))
}

func (g *Gate) observe(o models.ValidationOutcome) {
	if g.metrics == nil {
		return
	}
	g.metrics.ObserveValidation(string(o.Collection), string(o.Level), o.Valid, o.Bypassed, len(o.Errors), len(o.Warnings))
}

func stringify(errs []models.FieldError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.String())
	}
	return out
}
