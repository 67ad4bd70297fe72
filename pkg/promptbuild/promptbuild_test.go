package promptbuild

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
)

func TestBuildSystemPrompt_IsDeterministic(t *testing.T) {
	a := BuildSystemPrompt(Slots{})
	b := BuildSystemPrompt(Slots{})
	assert.Equal(t, a, b)
	assert.Contains(t, a, "resource_reservation")
	assert.Contains(t, a, "unknown")
	assert.Contains(t, a, "chain_of_thought")
	assert.Contains(t, a, "summary")
}

func TestBuildSystemPrompt_OverrideMergesOnlyNonEmptySlots(t *testing.T) {
	base := BuildSystemPrompt(Slots{})
	overridden := BuildSystemPrompt(Slots{SystemRole: "You are a custom fleet assistant."})
	assert.NotEqual(t, base, overridden)
	assert.Contains(t, overridden, "custom fleet assistant")
	// Other slots still fall back to defaults.
	assert.Contains(t, overridden, "Input Analysis")
}

func TestBuildUserPrompt_IncludesTimestampAndSortedContext(t *testing.T) {
	restore := nowFunc
	nowFunc = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	defer func() { nowFunc = restore }()

	prompt := BuildUserPrompt("reserve van 12 tomorrow", map[string]string{"zebra": "1", "alpha": "2"})
	require.Contains(t, prompt, "2026-01-02T03:04:05Z")
	alphaIdx := strings.Index(prompt, "alpha")
	zebraIdx := strings.Index(prompt, "zebra")
	require.True(t, alphaIdx >= 0 && zebraIdx >= 0)
	assert.Less(t, alphaIdx, zebraIdx, "context keys must render in sorted order")
	assert.Contains(t, prompt, "reserve van 12 tomorrow")
}

func TestBuildUserPrompt_NoContextOmitsSection(t *testing.T) {
	prompt := BuildUserPrompt("status of VAN-12", nil)
	assert.NotContains(t, prompt, "Context:")
}

func TestBuildClarificationPrompt_OneBulletPerMissingKind(t *testing.T) {
	prompt := BuildClarificationPrompt("book a van", []fleetmodel.EntityKind{
		fleetmodel.EntityDate, fleetmodel.EntityResourceID,
	})
	assert.Contains(t, prompt, "What date does this apply to?")
	assert.Contains(t, prompt, "Which vehicle or resource ID are you referring to?")
	assert.Equal(t, 2, strings.Count(prompt, "- "))
}

func TestBuildTemplateSelectionPrompt_CapsExamplesPerCategory(t *testing.T) {
	data := TemplateSelectionInput{
		Templates: []fleetmodel.TemplateMetadata{
			{Name: "reserve_vehicle", Category: "reservation", Description: "reserve a vehicle",
				RequiredEntities: []fleetmodel.EntityKind{fleetmodel.EntityResourceID, fleetmodel.EntityDate},
				APIEndpoint:      "/api/reservations", HTTPMethod: "POST", SuccessRate: 0.92},
		},
		Examples: map[string][]string{
			"reservation": {"reserve van 3 for Monday", "book truck 12", "need a car tomorrow", "fifth example"},
		},
	}
	prompt := BuildTemplateSelectionPrompt("reserve van 3 tomorrow", data)
	assert.Contains(t, prompt, "reserve_vehicle")
	assert.Contains(t, prompt, "selected_template")
	assert.Equal(t, maxFewShotPerCategory, strings.Count(prompt, "    - "))
	assert.NotContains(t, prompt, "fifth example")
}

func TestBuildTemplateSelectionPrompt_EscapesNewlinesInExamples(t *testing.T) {
	data := TemplateSelectionInput{
		Templates: []fleetmodel.TemplateMetadata{{Name: "t", Category: "c"}},
		Examples:  map[string][]string{"c": {"line one\nline two"}},
	}
	prompt := BuildTemplateSelectionPrompt("x", data)
	assert.Contains(t, prompt, `line one\nline two`)
	assert.NotContains(t, prompt, "line one\nline two\n    -")
}

func TestValidateEntity(t *testing.T) {
	assert.Nil(t, ValidateEntity(fleetmodel.EntityDate, "2026-08-01"))
	assert.NotNil(t, ValidateEntity(fleetmodel.EntityDate, "not-a-date"))
	// Kinds with no canonical pattern pass unconditionally.
	assert.Nil(t, ValidateEntity(fleetmodel.EntityLocation, "anything goes"))
}
