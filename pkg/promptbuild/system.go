// Package promptbuild implements the Prompt Builder (spec §4.3, C3): pure,
// deterministic construction of the four prompt strings the Reasoning
// Engine sends to the LLM, plus the entity-validation helpers the engine
// uses to annotate extracted entities without another model call.
//
// Every Build* function here is a pure function of its arguments: same
// inputs always produce the same prompt string, per spec §4.3. The one
// exception is BuildUserPrompt, which also stamps the current time read
// through nowFunc.
package promptbuild

import (
	"fmt"
	"strings"
	"time"

	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
)

// intentTaxonomy lists every IntentTag the system prompt names, in the
// canonical order from the glossary.
var intentTaxonomy = []fleetmodel.IntentTag{
	fleetmodel.IntentResourceReservation,
	fleetmodel.IntentTaskScheduling,
	fleetmodel.IntentStatusQuery,
	fleetmodel.IntentInventoryManagement,
	fleetmodel.IntentReportingAnalytics,
	fleetmodel.IntentUserManagement,
	fleetmodel.IntentUnknown,
}

var entityTaxonomy = []fleetmodel.EntityKind{
	fleetmodel.EntityResourceID,
	fleetmodel.EntityDate,
	fleetmodel.EntityTime,
	fleetmodel.EntityLocation,
	fleetmodel.EntityUser,
	fleetmodel.EntityDuration,
	fleetmodel.EntityCost,
	fleetmodel.EntityMileage,
	fleetmodel.EntityFuel,
	fleetmodel.EntityStatus,
	fleetmodel.EntityPriority,
}

// defaultSlots is what BuildSystemPrompt falls back to for any slot the
// caller leaves empty.
var defaultSlots = Slots{
	SystemRole: "You are the reasoning core of a fleet management request pipeline. " +
		"You read a natural-language request about vehicles, reservations, maintenance " +
		"or personnel and turn it into a structured interpretation.",
	ReasoningInstructions: "Think in four named phases, in order: " +
		"\"Input Analysis\", \"Intent Recognition\", \"Entity Extraction\", \"API Mapping\". " +
		"Record each phase as one element of chain_of_thought before producing the summary.",
	OutputFormat: "Respond with nothing but the JSON envelope. Do not add prose before or " +
		"after it, and do not wrap it in a code fence.",
}

func envelopeContract() string {
	var b strings.Builder
	b.WriteString("Emit exactly one JSON object with two top-level keys: ")
	b.WriteString(`"chain_of_thought" and "summary". `)
	b.WriteString(`"chain_of_thought" is an ordered array of step objects, each with `)
	b.WriteString(`"name", "narrative", and optionally "findings", "confidence", "entities", "api_calls". `)
	b.WriteString(`The step named "Entity Extraction" carries the "entities" map keyed by entity kind. `)
	b.WriteString(`The step named "API Mapping" carries "api_calls", each with "method", "endpoint", `)
	b.WriteString(`"body", and "purpose". `)
	b.WriteString(`"summary" has "intent", "confidence" in [0,1], and optionally "risk".`)
	return b.String()
}

// BuildSystemPrompt renders the fixed system instruction, naming the intent
// taxonomy and the envelope contract (spec §4.3 item 1). override lets
// callers replace individual slots; unset slots fall back to defaultSlots.
func BuildSystemPrompt(override Slots) string {
	slots := defaultSlots.Merge(override)

	intents := make([]string, len(intentTaxonomy))
	for i, t := range intentTaxonomy {
		intents[i] = string(t)
	}
	entityKinds := make([]string, len(entityTaxonomy))
	for i, k := range entityTaxonomy {
		entityKinds[i] = string(k)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", slots.SystemRole)
	fmt.Fprintf(&b, "Valid intents: %s.\n", strings.Join(intents, ", "))
	fmt.Fprintf(&b, "Valid entity kinds: %s.\n\n", strings.Join(entityKinds, ", "))
	fmt.Fprintf(&b, "%s\n\n", slots.ReasoningInstructions)
	contract := slots.EnvelopeContract
	if contract == "" {
		contract = envelopeContract()
	}
	fmt.Fprintf(&b, "%s\n\n", contract)
	fmt.Fprintf(&b, "%s\n", slots.OutputFormat)
	if slots.Additional != "" {
		fmt.Fprintf(&b, "\n%s\n", slots.Additional)
	}
	return b.String()
}

// nowFunc is overridden in tests; production code always calls time.Now.
var nowFunc = time.Now
