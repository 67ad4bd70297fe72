package promptbuild

import (
	"fmt"
	"strings"

	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
)

const maxFewShotPerCategory = 3

// TemplateSelectionInput bundles the per-template data the prompt needs:
// the store's metadata plus a pool of worked few-shot examples, keyed by
// category, that the caller curates (spec §4.3 item 4: "up to 3 few-shot
// examples per category").
type TemplateSelectionInput struct {
	Templates []fleetmodel.TemplateMetadata
	Examples  map[string][]string // category -> example input strings
}

// BuildTemplateSelectionPrompt renders the user input plus a fixed-format
// listing of every candidate template, and a strict instruction to respond
// with the selection JSON shape.
func BuildTemplateSelectionPrompt(input string, data TemplateSelectionInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n\n", input)
	b.WriteString("Available templates:\n\n")

	seenCategory := make(map[string]bool)
	for _, t := range data.Templates {
		fmt.Fprintf(&b, "- name: %s\n", t.Name)
		fmt.Fprintf(&b, "  category: %s\n", t.Category)
		fmt.Fprintf(&b, "  description: %s\n", t.Description)
		fmt.Fprintf(&b, "  required_entities: %s\n", joinKinds(t.RequiredEntities))
		fmt.Fprintf(&b, "  optional_entities: %s\n", joinKinds(t.OptionalEntities))
		fmt.Fprintf(&b, "  endpoint: %s %s\n", t.HTTPMethod, t.APIEndpoint)
		fmt.Fprintf(&b, "  success_rate: %.2f\n", t.SuccessRate)

		if !seenCategory[t.Category] {
			seenCategory[t.Category] = true
			examples := data.Examples[t.Category]
			if len(examples) > maxFewShotPerCategory {
				examples = examples[:maxFewShotPerCategory]
			}
			if len(examples) > 0 {
				b.WriteString("  examples:\n")
				for _, ex := range examples {
					fmt.Fprintf(&b, "    - \"%s\"\n", escapeExample(ex))
				}
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Respond with strict JSON only, matching exactly this shape:\n")
	b.WriteString(`{"selected_template": string, "confidence": number, "reasoning": string, ` +
		`"key_factors": [string], "alternatives": [string], "matched_examples": [string]}` + "\n")
	return b.String()
}

func joinKinds(kinds []fleetmodel.EntityKind) string {
	if len(kinds) == 0 {
		return "(none)"
	}
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

// escapeExample collapses embedded newlines in a few-shot example to a
// literal "\n" so the example survives as a single prompt line. This is
// intentional: few-shot examples are meant to read as one-line exemplars,
// not to reproduce arbitrary multi-line input verbatim.
func escapeExample(s string) string {
	return strings.ReplaceAll(s, "\n", `\n`)
}
