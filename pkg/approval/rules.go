// Package approval implements the Validator / Approval State Machine
// (spec §4.6, C6): field-rule validation of a filled request, the
// Pending/Approved/Editing/Rejected/Executed lifecycle, and an audit log.
//
// Grounded on reasoning/state.go's state-value idiom, adapted from a
// reasoning iteration's state to an approval decision's state.
package approval

import (
	"fmt"
	"strings"

	"github.com/fleetpilot/corepipe/pkg/entities"
	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
)

// FieldKind describes the shape a field's value must take.
type FieldKind string

const (
	KindString   FieldKind = "string"
	KindResource FieldKind = "resource_id"
	KindDate     FieldKind = "date"
	KindDateTime FieldKind = "datetime"
	KindEnum     FieldKind = "enum"
	KindNumber   FieldKind = "number"
)

// FieldRule is one entry in the field-validator registry.
type FieldRule struct {
	Field       string
	Required    bool
	Kind        FieldKind
	Enumeration []string
	Min         float64
	Max         float64
}

// defaultRules is the fixed registry spec §4.6 names: resource IDs,
// ISO-8601 dates/datetimes, the priority/status/maintenance_type
// enumerations, and year/passenger_count ranges.
func defaultRules() []FieldRule {
	return []FieldRule{
		{Field: "resource_id", Required: true, Kind: KindResource},
		{Field: "date", Kind: KindDate},
		{Field: "scheduled_at", Kind: KindDateTime},
		{Field: "priority", Kind: KindEnum, Enumeration: []string{"low", "medium", "high", "urgent"}},
		{Field: "status", Kind: KindEnum, Enumeration: []string{"pending", "active", "completed", "cancelled"}},
		{Field: "maintenance_type", Kind: KindEnum, Enumeration: []string{"routine", "repair", "inspection", "recall"}},
		{Field: "year", Kind: KindNumber, Min: 2000, Max: 2025},
		{Field: "passenger_count", Kind: KindNumber, Min: 1, Max: 8},
	}
}

// Registry holds the active field rules, keyed by field name.
type Registry struct {
	rules map[string]FieldRule
}

// NewRegistry builds a Registry from the spec-mandated default rules, plus
// any extra rules the caller supplies (later entries override earlier ones
// with the same field name).
func NewRegistry(extra ...FieldRule) *Registry {
	r := &Registry{rules: make(map[string]FieldRule)}
	for _, rule := range defaultRules() {
		r.rules[rule.Field] = rule
	}
	for _, rule := range extra {
		r.rules[rule.Field] = rule
	}
	return r
}

// Validate checks every registered field against request, plus flags any
// required field that is entirely absent.
func (r *Registry) Validate(request map[string]any) []fleetmodel.ValidationFinding {
	var findings []fleetmodel.ValidationFinding

	for _, rule := range r.rules {
		raw, present := request[rule.Field]
		if !present {
			if rule.Required {
				findings = append(findings, fleetmodel.ValidationFinding{
					Field:    rule.Field,
					Severity: fleetmodel.SeverityError,
					Message:  fmt.Sprintf("%s is required but missing", rule.Field),
				})
			}
			continue
		}
		if finding := validateOne(rule, raw); finding != nil {
			findings = append(findings, *finding)
		}
	}
	return findings
}

func validateOne(rule FieldRule, raw any) *fleetmodel.ValidationFinding {
	str, isString := raw.(string)

	switch rule.Kind {
	case KindResource:
		if !isString || !entities.IsResourceID(str) {
			return &fleetmodel.ValidationFinding{
				Field: rule.Field, Severity: fleetmodel.SeverityError,
				Message: "does not match any known resource ID pattern",
			}
		}
	case KindDate:
		if !isString || !entities.IsDate(str) {
			return &fleetmodel.ValidationFinding{
				Field: rule.Field, Severity: fleetmodel.SeverityError,
				Message: "not a recognized ISO-8601 date", Suggestion: "use YYYY-MM-DD",
			}
		}
	case KindDateTime:
		if !isString || !isISODateTime(str) {
			return &fleetmodel.ValidationFinding{
				Field: rule.Field, Severity: fleetmodel.SeverityError,
				Message: "not a recognized ISO-8601 date-time", Suggestion: "use YYYY-MM-DDTHH:MM:SS",
			}
		}
	case KindEnum:
		if !isString || !contains(rule.Enumeration, str) {
			return &fleetmodel.ValidationFinding{
				Field: rule.Field, Severity: fleetmodel.SeverityError,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(rule.Enumeration, ", ")),
			}
		}
	case KindNumber:
		n, ok := asFloat(raw)
		if !ok || n < rule.Min || n > rule.Max {
			return &fleetmodel.ValidationFinding{
				Field: rule.Field, Severity: fleetmodel.SeverityError,
				Message: fmt.Sprintf("must be a number in [%g,%g]", rule.Min, rule.Max),
			}
		}
	}
	return nil
}

func isISODateTime(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < len("2006-01-02T15:04:05") {
		return false
	}
	datePart, timePart, ok := strings.Cut(s, "T")
	if !ok {
		return false
	}
	return entities.IsDate(datePart) && entities.IsTime(strings.TrimSuffix(timePart, "Z"))
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
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
