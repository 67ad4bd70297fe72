package promptbuild

import (
	"fmt"
	"strings"

	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
)

// canonicalQuestions gives a fixed, human-readable question per entity kind
// for the clarification prompt (spec §4.3 item 3).
var canonicalQuestions = map[fleetmodel.EntityKind]string{
	fleetmodel.EntityResourceID: "Which vehicle or resource ID are you referring to?",
	fleetmodel.EntityDate:       "What date does this apply to?",
	fleetmodel.EntityTime:       "What time does this apply to?",
	fleetmodel.EntityLocation:   "Which location is involved?",
	fleetmodel.EntityUser:       "Which user or driver is this for?",
	fleetmodel.EntityDuration:   "How long should this last?",
	fleetmodel.EntityCost:       "What is the associated cost?",
	fleetmodel.EntityMileage:    "What is the mileage reading?",
	fleetmodel.EntityFuel:       "What is the fuel level or amount?",
	fleetmodel.EntityStatus:     "What status should be set?",
	fleetmodel.EntityPriority:   "What priority should this have?",
}

// questionFor returns the canonical question for kind, falling back to a
// generic phrasing for any kind not in canonicalQuestions.
func questionFor(kind fleetmodel.EntityKind) string {
	if q, ok := canonicalQuestions[kind]; ok {
		return q
	}
	return fmt.Sprintf("Can you provide a value for %s?", kind)
}

// BuildClarificationPrompt renders a prompt asking the user to fill in
// entity kinds the model could not extract: the original input plus one
// bullet per missing kind.
func BuildClarificationPrompt(input string, missing []fleetmodel.EntityKind) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original request: %s\n\n", input)
	b.WriteString("I need a bit more information before I can proceed:\n")
	for _, kind := range missing {
		fmt.Fprintf(&b, "- %s\n", questionFor(kind))
	}
	return b.String()
}
