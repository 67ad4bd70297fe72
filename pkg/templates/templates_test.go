package templates

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
	"github.com/fleetpilot/corepipe/pkg/llmproc"
)

func reserveTemplate() Template {
	return Template{
		Metadata: fleetmodel.TemplateMetadata{
			Name:             "reserve_vehicle",
			Category:         "reservation",
			Description:      "reserve a vehicle",
			RequiredEntities: []fleetmodel.EntityKind{fleetmodel.EntityResourceID, fleetmodel.EntityDate},
			APIEndpoint:      "/api/reservations",
			HTTPMethod:       "POST",
			UsageCount:       10,
			SuccessRate:      0.9,
		},
		Body: map[string]any{
			"resource_id": SlotRef{Kind: fleetmodel.EntityResourceID},
			"date":        SlotRef{Kind: fleetmodel.EntityDate},
			"nested": map[string]any{
				"priority": SlotRef{Kind: fleetmodel.EntityPriority},
			},
		},
	}
}

func TestFill_ReplacesSlotsAndAddsMeta(t *testing.T) {
	s := New()
	s.Register(reserveTemplate())

	result, err := s.Fill("reserve_vehicle", map[fleetmodel.EntityKind][]string{
		fleetmodel.EntityResourceID: {"VAN-12"},
		fleetmodel.EntityDate:       {"2026-08-01"},
	}, "reserve van 12 tomorrow")
	require.NoError(t, err)

	assert.Equal(t, "VAN-12", result["resource_id"])
	assert.Equal(t, "2026-08-01", result["date"])
	nested := result["nested"].(map[string]any)
	assert.Nil(t, nested["priority"], "missing entity leaves a nil slot, not an error")

	meta := result["_meta"].(map[string]any)
	assert.Equal(t, "user_input", meta["source"])
	assert.Equal(t, "reserve van 12 tomorrow", meta["original_text"])
}

func TestFill_UnknownTemplateErrors(t *testing.T) {
	s := New()
	_, err := s.Fill("nope", nil, "")
	assert.Error(t, err)
}

type fakeGen struct {
	response string
	err      error
}

func (f *fakeGen) Generate(ctx context.Context, req llmproc.GenerateRequest) (llmproc.GenerateResponse, error) {
	if f.err != nil {
		return llmproc.GenerateResponse{}, f.err
	}
	return llmproc.GenerateResponse{Response: f.response, Done: true}, nil
}

func TestSelect_ParsesFencedJSON(t *testing.T) {
	s := New()
	s.Register(reserveTemplate())

	gen := &fakeGen{response: "```json\n" +
		`{"selected_template":"reserve_vehicle","confidence":0.88,"reasoning":"matches reservation intent",` +
		`"key_factors":["resource_id present"],"alternatives":[],"matched_examples":[]}` +
		"\n```"}

	choice, err := s.Select(context.Background(), gen, "qwen2.5:14b", "reserve van 12 tomorrow", nil)
	require.NoError(t, err)
	assert.Equal(t, "reserve_vehicle", choice.TemplateName)
	assert.InDelta(t, float32(0.88), choice.Confidence, 0.001)
	assert.Equal(t, fleetmodel.BandHigh, choice.ConfidenceBand)
}

func TestSelect_FallsBackToJaccardForUnknownTemplate(t *testing.T) {
	s := New()
	s.Register(reserveTemplate())

	gen := &fakeGen{response: `{"selected_template":"reserve vehicle ","confidence":0.5,"reasoning":"close"}`}
	choice, err := s.Select(context.Background(), gen, "qwen2.5:14b", "reserve van 12", nil)
	require.NoError(t, err)
	assert.Equal(t, "reserve_vehicle", choice.TemplateName)
}

func TestSelect_DeterministicFallbackOnParseFailure(t *testing.T) {
	s := New()
	s.Register(reserveTemplate())

	gen := &fakeGen{response: "not json at all"}
	choice, err := s.Select(context.Background(), gen, "qwen2.5:14b", "reserve van 12", nil)
	require.NoError(t, err)
	assert.Equal(t, "reserve_vehicle", choice.TemplateName)
	assert.InDelta(t, float32(0.1), choice.Confidence, 0.001)
	assert.Equal(t, fleetmodel.BandVeryLow, choice.ConfidenceBand)
	assert.Contains(t, choice.Reasoning, "not valid selection JSON")
}

func TestAnalytics_TracksSelectionHistory(t *testing.T) {
	s := New()
	s.Register(reserveTemplate())
	gen := &fakeGen{response: `{"selected_template":"reserve_vehicle","confidence":0.9,"reasoning":"x"}`}

	for i := 0; i < 3; i++ {
		_, err := s.Select(context.Background(), gen, "qwen2.5:14b", "reserve van 12", nil)
		require.NoError(t, err)
	}

	analytics := s.Analytics()
	assert.Equal(t, 3, analytics.Total)
	assert.InDelta(t, float32(0.9), analytics.AverageConfidence, 0.001)
	require.Len(t, analytics.MostSelectedTop5, 1)
	assert.Equal(t, "reserve_vehicle", analytics.MostSelectedTop5[0].Name)
	assert.Equal(t, 3, analytics.MostSelectedTop5[0].Count)
}
