package promptbuild

import (
	"github.com/fleetpilot/corepipe/pkg/entities"
	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
)

// kindToValidatorTag maps a fleetmodel.EntityKind to the validator tag
// pkg/entities.ValidateKind expects. Kinds with no canonical pattern
// (location, user, duration, cost, mileage, fuel, status, priority) are
// accepted unconditionally, matching pkg/entities' "unknown kinds pass"
// behavior.
func kindToValidatorTag(kind fleetmodel.EntityKind) string {
	switch kind {
	case fleetmodel.EntityResourceID:
		return "resource_id"
	case fleetmodel.EntityDate:
		return "date"
	case fleetmodel.EntityTime:
		return "time"
	default:
		return ""
	}
}

// ValidateEntity checks a raw extracted value against the canonical pattern
// for its kind, returning nil when the value is acceptable. This is the
// entity-validation helper spec §4.3 assigns to the Prompt Builder; it is
// pure and carries no LLM dependency, reusing pkg/entities' regex tables.
func ValidateEntity(kind fleetmodel.EntityKind, value string) *entities.ValidationIssue {
	return entities.ValidateKind(kindToValidatorTag(kind), value)
}
