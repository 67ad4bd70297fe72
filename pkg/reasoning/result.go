package reasoning

import (
	"strings"
	"time"

	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
	"github.com/fleetpilot/corepipe/pkg/streamproc"
)

// entityExtractionStep and apiMappingStep are the fixed chain-of-thought
// step names the envelope contract (pkg/promptbuild) instructs the model to
// use; result construction pulls entities and API calls from these by name
// (spec §4.4 "Result construction").
const (
	entityExtractionStep = "Entity Extraction"
	apiMappingStep       = "API Mapping"
)

var domainKeywords = []string{"vehicle", "reservation", "maintenance", "driver", "fleet", "mileage"}

// buildFromRawResponse parses a single blocking-path response and constructs
// a ReasoningResult, falling back to the heuristic estimator when the
// response is not envelope-shaped JSON.
func buildFromRawResponse(requestID, raw string, startedAt time.Time) fleetmodel.ReasoningResult {
	if env, ok := streamproc.ParseEnvelope(strings.TrimSpace(raw)); ok {
		return fromEnvelope(requestID, env, raw, startedAt)
	}
	return buildHeuristicResult(requestID, raw, startedAt)
}

// resultFromCompletion maps a streamproc.CompletionResult into the engine's
// ReasoningResult shape.
func resultFromCompletion(requestID string, completion streamproc.CompletionResult, startedAt time.Time) fleetmodel.ReasoningResult {
	if completion.Envelope != nil {
		return fromEnvelope(requestID, completion.Envelope, completion.RawText, startedAt)
	}
	if completion.Cancelled {
		r := buildHeuristicResult(requestID, completion.RawText, startedAt)
		r.ParseFailed = true
		return r
	}
	return buildHeuristicResult(requestID, completion.RawText, startedAt)
}

func fromEnvelope(requestID string, env *streamproc.Envelope, raw string, startedAt time.Time) fleetmodel.ReasoningResult {
	steps := make([]fleetmodel.ReasoningStep, 0, len(env.ChainOfThought))
	var entities map[fleetmodel.EntityKind][]string
	var apiCalls []fleetmodel.APICallDraft

	for _, rawStep := range env.ChainOfThought {
		step := fleetmodel.ReasoningStep{
			Name:      rawStep.Name,
			Narrative: rawStep.Narrative,
			Findings:  rawStep.Findings,
		}
		if rawStep.Confidence != nil {
			step.Confidence = rawStep.Confidence
		}
		if len(rawStep.Entities) > 0 {
			step.Entities = make(map[fleetmodel.EntityKind][]string, len(rawStep.Entities))
			for k, v := range rawStep.Entities {
				step.Entities[fleetmodel.EntityKind(k)] = v
			}
		}
		for _, call := range rawStep.APICalls {
			step.APICalls = append(step.APICalls, fleetmodel.APICallDraft{
				Method:   call.Method,
				Endpoint: call.Endpoint,
				Body:     call.Body,
				Purpose:  call.Purpose,
			})
		}
		steps = append(steps, step)

		if rawStep.Name == entityExtractionStep {
			entities = step.Entities
		}
		if rawStep.Name == apiMappingStep {
			apiCalls = step.APICalls
		}
	}

	return fleetmodel.ReasoningResult{
		RequestID:      requestID,
		Intent:         fleetmodel.IntentTag(env.Summary.Intent),
		Confidence:     env.Summary.Confidence,
		Steps:          steps,
		Entities:       entities,
		APICalls:       apiCalls,
		RawResponse:    raw,
		ParseFailed:    false,
		ProcessingTime: time.Since(startedAt),
		StartedAt:      startedAt,
	}
}

// buildHeuristicResult applies the spec §4.4 non-JSON fallback: base 0.3,
// +0.2 for "API" (any case), +0.2 for a domain keyword, +0.1 for length
// over 100, capped at 1.0.
func buildHeuristicResult(requestID, raw string, startedAt time.Time) fleetmodel.ReasoningResult {
	return fleetmodel.ReasoningResult{
		RequestID:      requestID,
		Intent:         fleetmodel.IntentUnknown,
		Confidence:     heuristicConfidence(raw),
		RawResponse:    raw,
		ParseFailed:    true,
		ProcessingTime: time.Since(startedAt),
		StartedAt:      startedAt,
	}
}

func heuristicConfidence(text string) float32 {
	var confidence float32 = 0.3
	lower := strings.ToLower(text)
	if strings.Contains(lower, "api") {
		confidence += 0.2
	}
	for _, kw := range domainKeywords {
		if strings.Contains(lower, kw) {
			confidence += 0.2
			break
		}
	}
	if len(text) > 100 {
		confidence += 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}
