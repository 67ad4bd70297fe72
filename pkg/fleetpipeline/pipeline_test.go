package fleetpipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetpilot/corepipe/pkg/approval"
	"github.com/fleetpilot/corepipe/pkg/fleetapi"
	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
	"github.com/fleetpilot/corepipe/pkg/llmproc"
	"github.com/fleetpilot/corepipe/pkg/reasoning"
	"github.com/fleetpilot/corepipe/pkg/templates"
)

const selectionMarker = "Available templates:"

// fakeLLM answers both the Reasoning Engine's chain-of-thought prompt and
// the Template Store's selection prompt from the same Generate/
// GenerateStream pair, distinguishing them by the selection prompt's fixed
// "Available templates:" marker (promptbuild.BuildTemplateSelectionPrompt).
type fakeLLM struct {
	envelope     string
	streamChunks []string
	selection    string
	genErr       error
}

func (f *fakeLLM) Generate(ctx context.Context, req llmproc.GenerateRequest) (llmproc.GenerateResponse, error) {
	if strings.Contains(req.Prompt, selectionMarker) {
		return llmproc.GenerateResponse{Response: f.selection, Done: true}, nil
	}
	if f.genErr != nil {
		return llmproc.GenerateResponse{}, f.genErr
	}
	return llmproc.GenerateResponse{Response: f.envelope, Done: true}, nil
}

func (f *fakeLLM) GenerateStream(ctx context.Context, req llmproc.GenerateRequest, onChunk func(content string, done bool)) error {
	if strings.Contains(req.Prompt, selectionMarker) {
		onChunk(f.selection, true)
		return nil
	}
	if f.genErr != nil {
		return f.genErr
	}
	chunks := f.streamChunks
	if len(chunks) == 0 {
		chunks = []string{f.envelope}
	}
	for i, c := range chunks {
		onChunk(c, i == len(chunks)-1)
	}
	return nil
}

func reserveResourceTemplate() templates.Template {
	return templates.Template{
		Metadata: fleetmodel.TemplateMetadata{
			Name:             "reserve_resource",
			Category:         "resource_reservation",
			RequiredEntities: []fleetmodel.EntityKind{fleetmodel.EntityResourceID, fleetmodel.EntityDate},
			APIEndpoint:      "/reservations",
			HTTPMethod:       "POST",
		},
		Body: map[string]any{
			"resource_id": templates.SlotRef{Kind: fleetmodel.EntityResourceID},
			"date":        templates.SlotRef{Kind: fleetmodel.EntityDate},
		},
	}
}

func envelopeFor(resourceID, date string, confidence float32) string {
	entities := map[string]any{}
	if resourceID != "" {
		entities["resource_id"] = []string{resourceID}
	}
	if date != "" {
		entities["date"] = []string{date}
	}
	entitiesJSON, _ := json.Marshal(entities)
	return `{"chain_of_thought":[` +
		`{"name":"Input Analysis","narrative":"..."},` +
		`{"name":"Intent Recognition","narrative":"..."},` +
		`{"name":"Entity Extraction","narrative":"...","entities":` + string(entitiesJSON) + `},` +
		`{"name":"API Mapping","narrative":"...","api_calls":[{"method":"POST","endpoint":"/reservations"}]}` +
		`],"summary":{"intent":"resource_reservation","confidence":` + floatStr(confidence) + `}}`
}

func floatStr(f float32) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func selectionFor(template string, confidence float32) string {
	b, _ := json.Marshal(map[string]any{
		"selected_template": template,
		"confidence":        confidence,
		"reasoning":         "matches resource reservation",
	})
	return string(b)
}

type testDeps struct {
	gen    *fakeLLM
	store  *templates.Store
	client *fleetapi.Client
	calls  *int
}

func newPipeline(t *testing.T, gen *fakeLLM, confirm Confirm, autoApprove bool, fleetHandler http.HandlerFunc) (*Pipeline, *testDeps) {
	t.Helper()

	store := templates.New()
	store.Register(reserveResourceTemplate())

	engine := reasoning.New(reasoning.Config{Model: "qwen2.5:14b", Generator: gen})
	registry := approval.NewRegistry()

	calls := 0
	var client *fleetapi.Client
	if fleetHandler != nil {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			fleetHandler(w, r)
		}))
		t.Cleanup(srv.Close)
		client = fleetapi.New(srv.URL, fleetapi.WithMaxRetries(1), fleetapi.WithBackoffDelay(time.Millisecond))
	}

	p := New(Config{
		Engine:      engine,
		Store:       store,
		Generator:   gen,
		Registry:    registry,
		Client:      client,
		Model:       "qwen2.5:14b",
		AutoApprove: autoApprove,
		Confirm:     confirm,
	})
	return p, &testDeps{gen: gen, store: store, client: client, calls: &calls}
}

func okFleetHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}

func TestPipeline_HappyPathAutoApprovesAndExecutes(t *testing.T) {
	gen := &fakeLLM{
		envelope:  envelopeFor("VAN-123", "2026-08-01", 0.9),
		selection: selectionFor("reserve_resource", 0.95),
	}
	p, deps := newPipeline(t, gen, nil, true, okFleetHandler)

	outcome, err := p.Handle(context.Background(), "reserve van 123 for tomorrow")
	require.NoError(t, err)
	assert.True(t, outcome.Approved)
	assert.True(t, outcome.Executed)
	assert.Equal(t, http.StatusOK, outcome.Status)
	assert.Equal(t, 1, *deps.calls)
	assert.Equal(t, "VAN-123", outcome.Interpretation.Request["resource_id"])
}

func TestPipeline_MissingRequiredEntityBlocksApproval(t *testing.T) {
	gen := &fakeLLM{
		envelope:  envelopeFor("", "2026-08-01", 0.5),
		selection: selectionFor("reserve_resource", 0.6),
	}
	p, deps := newPipeline(t, gen, nil, true, okFleetHandler)

	outcome, err := p.Handle(context.Background(), "reserve something for tomorrow")
	require.NoError(t, err)
	assert.False(t, outcome.Approved)
	assert.False(t, outcome.Executed)
	require.NotEmpty(t, outcome.Findings)
	assert.Equal(t, 0, *deps.calls, "blocked request must never reach the fleet api")
}

func TestPipeline_InvalidDateBlocksApproval(t *testing.T) {
	gen := &fakeLLM{
		envelope:  envelopeFor("VAN-123", "not-a-date", 0.9),
		selection: selectionFor("reserve_resource", 0.9),
	}
	p, deps := newPipeline(t, gen, nil, true, okFleetHandler)

	outcome, err := p.Handle(context.Background(), "reserve van 123 whenever")
	require.NoError(t, err)
	assert.False(t, outcome.Approved)
	found := false
	for _, f := range outcome.Findings {
		if f.Field == "date" && f.Severity == fleetmodel.SeverityError {
			found = true
		}
	}
	assert.True(t, found, "expected a blocking finding on the date field")
	assert.Equal(t, 0, *deps.calls)
}

func TestPipeline_GeneratorFailureFallsBackToHeuristicWithoutCrashing(t *testing.T) {
	gen := &fakeLLM{
		genErr:    assert.AnError,
		selection: selectionFor("reserve_resource", 0.5),
	}
	p, deps := newPipeline(t, gen, nil, true, okFleetHandler)

	outcome, err := p.Handle(context.Background(), "reserve van 123 tomorrow")
	require.NoError(t, err)
	assert.False(t, outcome.Approved, "no entities extracted means the required fields stay missing")
	assert.Equal(t, 0, *deps.calls)
}

func TestPipeline_StreamRecoveryAcrossChunksStillExecutes(t *testing.T) {
	envelope := envelopeFor("VAN-999", "2026-09-15", 0.88)
	gen := &fakeLLM{
		streamChunks: []string{envelope[:len(envelope)/2], envelope[len(envelope)/2:]},
		selection:    selectionFor("reserve_resource", 0.8),
	}
	p, deps := newPipeline(t, gen, nil, true, okFleetHandler)

	outcome, err := p.Handle(context.Background(), "reserve van 999 in september")
	require.NoError(t, err)
	assert.True(t, outcome.Approved)
	assert.True(t, outcome.Executed)
	assert.Equal(t, 1, *deps.calls)
}

func TestPipeline_UnparseableSelectionFallsBackToDeterministicTemplate(t *testing.T) {
	gen := &fakeLLM{
		envelope:  envelopeFor("VAN-123", "2026-08-01", 0.9),
		selection: "not json at all",
	}
	p, deps := newPipeline(t, gen, nil, true, okFleetHandler)

	outcome, err := p.Handle(context.Background(), "reserve van 123 tomorrow")
	require.NoError(t, err)
	assert.Equal(t, "reserve_resource", outcome.Interpretation.TemplateName)
	assert.True(t, outcome.Executed)
	assert.Equal(t, 1, *deps.calls)
}

func TestPipeline_DeclinedConfirmationRejectsWithoutExecuting(t *testing.T) {
	gen := &fakeLLM{
		envelope:  envelopeFor("VAN-123", "2026-08-01", 0.9),
		selection: selectionFor("reserve_resource", 0.9),
	}
	declineAll := func(map[string]any, []fleetmodel.ValidationFinding) bool { return false }
	p, deps := newPipeline(t, gen, declineAll, false, okFleetHandler)

	outcome, err := p.Handle(context.Background(), "reserve van 123 tomorrow")
	require.NoError(t, err)
	assert.False(t, outcome.Approved)
	assert.False(t, outcome.Executed)
	assert.Equal(t, 0, *deps.calls)
}

func TestPipeline_FleetAPIErrorIsSurfacedAfterApproval(t *testing.T) {
	gen := &fakeLLM{
		envelope:  envelopeFor("VAN-123", "2026-08-01", 0.9),
		selection: selectionFor("reserve_resource", 0.9),
	}
	failing := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }
	p, deps := newPipeline(t, gen, nil, true, failing)

	outcome, err := p.Handle(context.Background(), "reserve van 123 tomorrow")
	require.Error(t, err)
	assert.True(t, outcome.Approved)
	assert.False(t, outcome.Executed)
	assert.GreaterOrEqual(t, *deps.calls, 1)
}
