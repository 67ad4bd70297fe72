package templates

import (
	"fmt"

	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
)

// errTemplateNotFound builds the error Fill returns when templateName isn't
// registered.
func errTemplateNotFound(name string) error {
	return fmt.Errorf("templates: template %q not found", name)
}

// Fill replaces every SlotRef leaf in the named template's body with the
// first value from the corresponding entity list, and adds a `_meta`
// subobject recording provenance (spec §4.5). Missing required entities are
// left as nil slot values; flagging them is the Validator's job, not the
// store's.
func (s *Store) Fill(templateName string, entitiesByKind map[fleetmodel.EntityKind][]string, originalText string) (map[string]any, error) {
	tmpl, ok := s.Get(templateName)
	if !ok {
		return nil, errTemplateNotFound(templateName)
	}

	filled := fillValue(tmpl.Body, entitiesByKind).(map[string]any)
	filled["_meta"] = map[string]any{
		"source":        "user_input",
		"original_text": originalText,
	}
	return filled, nil
}

func fillValue(v any, entitiesByKind map[fleetmodel.EntityKind][]string) any {
	switch val := v.(type) {
	case SlotRef:
		values := entitiesByKind[val.Kind]
		if len(values) == 0 {
			return nil
		}
		return values[0]
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = fillValue(child, entitiesByKind)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = fillValue(child, entitiesByKind)
		}
		return out
	default:
		return val
	}
}
