package reasoning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
	"github.com/fleetpilot/corepipe/pkg/llmproc"
)

const validEnvelope = `{"chain_of_thought":[` +
	`{"name":"Input Analysis","narrative":"..."},` +
	`{"name":"Intent Recognition","narrative":"..."},` +
	`{"name":"Entity Extraction","narrative":"...","entities":{"resource_id":["VAN-12"]}},` +
	`{"name":"API Mapping","narrative":"...","api_calls":[{"method":"POST","endpoint":"/api/reservations"}]}` +
	`],"summary":{"intent":"resource_reservation","confidence":0.85}}`

type fakeGenerator struct {
	blockingResponse string
	streamChunks     []string
}

func (f *fakeGenerator) Generate(ctx context.Context, req llmproc.GenerateRequest) (llmproc.GenerateResponse, error) {
	return llmproc.GenerateResponse{Response: f.blockingResponse, Done: true}, nil
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, req llmproc.GenerateRequest, onChunk func(content string, done bool)) error {
	for i, chunk := range f.streamChunks {
		onChunk(chunk, i == len(f.streamChunks)-1)
	}
	return nil
}

func waitForResult(t *testing.T, e *Engine, requestID string) *fleetmodel.ReasoningResult {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for result")
		default:
		}
		if r, status := e.Result(requestID); status == Ready {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngine_BlockingPathParsesEnvelope(t *testing.T) {
	gen := &fakeGenerator{blockingResponse: validEnvelope}
	e := New(Config{Model: "qwen2.5:14b", Generator: gen})

	streaming := false
	requestID, err := e.Submit(context.Background(), "reserve van 12 tomorrow", SubmitOptions{Streaming: &streaming})
	require.NoError(t, err)

	result := waitForResult(t, e, requestID)
	assert.Equal(t, fleetmodel.IntentResourceReservation, result.Intent)
	assert.InDelta(t, float32(0.85), result.Confidence, 0.001)
	assert.False(t, result.ParseFailed)
	require.Len(t, result.APICalls, 1)
	assert.Equal(t, "/api/reservations", result.APICalls[0].Endpoint)
	assert.Equal(t, []string{"VAN-12"}, result.Entities[fleetmodel.EntityResourceID])
}

func TestEngine_BlockingPathFallsBackToHeuristic(t *testing.T) {
	gen := &fakeGenerator{blockingResponse: "The vehicle API call requires more context than this plain text response provides, so no structured envelope was produced."}
	e := New(Config{Model: "qwen2.5:14b", Generator: gen})

	streaming := false
	requestID, err := e.Submit(context.Background(), "what's up", SubmitOptions{Streaming: &streaming})
	require.NoError(t, err)

	result := waitForResult(t, e, requestID)
	assert.True(t, result.ParseFailed)
	// base 0.3 + API(0.2) + domain keyword "vehicle"(0.2) + length>100(0.1)
	assert.InDelta(t, float32(0.8), result.Confidence, 0.001)
}

func TestEngine_StreamingPathParsesEnvelope(t *testing.T) {
	gen := &fakeGenerator{streamChunks: []string{validEnvelope[:40], validEnvelope[40:]}}
	e := New(Config{Model: "qwen2.5:14b", Generator: gen})

	requestID, err := e.Submit(context.Background(), "reserve van 12 tomorrow", SubmitOptions{})
	require.NoError(t, err)

	result := waitForResult(t, e, requestID)
	assert.Equal(t, fleetmodel.IntentResourceReservation, result.Intent)
	assert.False(t, result.ParseFailed)
}

func TestEngine_ResultUnknownRequestIsNotFound(t *testing.T) {
	e := New(Config{Model: "qwen2.5:14b", Generator: &fakeGenerator{}})
	_, status := e.Result("does-not-exist")
	assert.Equal(t, NotFound, status)
}

func TestEngine_ValidateScoresHighConfidenceCompleteResult(t *testing.T) {
	e := New(Config{Model: "qwen2.5:14b", Generator: &fakeGenerator{}})
	result := fleetmodel.ReasoningResult{
		Confidence: 0.9,
		Entities:   map[fleetmodel.EntityKind][]string{fleetmodel.EntityDate: {"2026-08-01"}},
		APICalls:   []fleetmodel.APICallDraft{{Method: "POST", Endpoint: "/api/reservations"}},
	}
	report := e.Validate(result)
	assert.InDelta(t, float32(1.0), report.OverallScore, 0.001)
	assert.Equal(t, fleetmodel.BandVeryHigh, report.ConfidenceBand)
	assert.Empty(t, report.EntityFindings)
}

func TestEngine_ValidateFlagsIncompleteAPICallsAndBadEntities(t *testing.T) {
	e := New(Config{Model: "qwen2.5:14b", Generator: &fakeGenerator{}})
	result := fleetmodel.ReasoningResult{
		Confidence: 0.5,
		Entities:   map[fleetmodel.EntityKind][]string{fleetmodel.EntityDate: {"not-a-date"}},
		APICalls:   []fleetmodel.APICallDraft{{Method: "POST"}},
	}
	report := e.Validate(result)
	assert.Equal(t, float32(0), report.OverallScore)
	assert.Len(t, report.EntityFindings, 1)
	assert.Len(t, report.APIFindings, 1)
	assert.NotEmpty(t, report.Recommendations)
}

func TestEngine_StatsTracksSuccessRate(t *testing.T) {
	gen := &fakeGenerator{blockingResponse: validEnvelope}
	e := New(Config{Model: "qwen2.5:14b", Generator: gen})
	streaming := false
	requestID, err := e.Submit(context.Background(), "reserve van 12", SubmitOptions{Streaming: &streaming})
	require.NoError(t, err)
	waitForResult(t, e, requestID)

	stats := e.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Successful)
	assert.InDelta(t, 1.0, stats.SuccessRate, 0.001)
}
