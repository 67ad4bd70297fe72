// Package fleetpipeline wires the six core components (LLM Subprocess
// Manager, Stream Processor, Reasoning Engine, Template Store, Approval
// State Machine, Fleet API client) into the single request flow spec §8
// describes end to end: raw text in, an executed (or blocked, or
// rejected) Fleet API call out.
//
// Grounded on cmd/hector/serve.go's component-assembly shape (config in,
// a running set of collaborating services out), narrowed from a
// long-lived server to the one-request-at-a-time pipeline this core runs.
package fleetpipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fleetpilot/corepipe/pkg/approval"
	"github.com/fleetpilot/corepipe/pkg/fleetapi"
	"github.com/fleetpilot/corepipe/pkg/fleeterr"
	"github.com/fleetpilot/corepipe/pkg/fleetmetrics"
	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
	"github.com/fleetpilot/corepipe/pkg/llmproc"
	"github.com/fleetpilot/corepipe/pkg/reasoning"
	"github.com/fleetpilot/corepipe/pkg/templates"
)

const resultPollInterval = 50 * time.Millisecond

// Generator is the narrow LLM dependency both the Reasoning Engine and the
// Template Store's AI selector need; *llmproc.Manager satisfies it.
type Generator interface {
	Generate(ctx context.Context, req llmproc.GenerateRequest) (llmproc.GenerateResponse, error)
	GenerateStream(ctx context.Context, req llmproc.GenerateRequest, onChunk func(content string, done bool)) error
}

// Confirm decides whether a filled, validated request should be approved.
// Returning false rejects it. The CLI implements this as an interactive
// stdin prompt; tests supply a fixed answer.
type Confirm func(request map[string]any, findings []fleetmodel.ValidationFinding) bool

// Config assembles a Pipeline from already-constructed components.
type Config struct {
	Engine      *reasoning.Engine
	Store       *templates.Store
	Generator   Generator
	Registry    *approval.Registry
	Client      *fleetapi.Client
	Metrics     *fleetmetrics.Metrics
	Model       fleetmodel.ModelIdentifier
	Logger      *slog.Logger
	AutoApprove bool
	Confirm     Confirm
}

// Pipeline drives one request at a time through every component spec §8's
// properties are tested against.
type Pipeline struct {
	cfg Config
}

// New constructs a Pipeline. A nil Confirm with AutoApprove unset rejects
// every request, matching a fail-closed default over a fail-open one.
func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = fleetmetrics.New()
	}
	if cfg.Confirm == nil {
		cfg.Confirm = func(map[string]any, []fleetmodel.ValidationFinding) bool { return false }
	}
	return &Pipeline{cfg: cfg}
}

// Outcome records what Handle did with one request, for callers (CLI,
// tests) that want more than pass/fail.
type Outcome struct {
	RequestID      string
	Interpretation fleetmodel.Interpretation
	Findings       []fleetmodel.ValidationFinding
	Approved       bool
	Executed       bool
	Status         int
}

// Handle drives text through the pipeline once: submit to the Reasoning
// Engine, await its result, select and fill a template, validate and run
// the filled request through the Approval State Machine, then execute it
// against the Fleet API unless validation blocks it or Confirm declines.
func (p *Pipeline) Handle(ctx context.Context, text string) (Outcome, error) {
	requestID, err := p.cfg.Engine.Submit(ctx, text, reasoning.SubmitOptions{})
	if err != nil {
		return Outcome{}, fmt.Errorf("submit request: %w", err)
	}

	result, err := p.awaitResult(ctx, requestID)
	if err != nil {
		return Outcome{RequestID: requestID}, err
	}
	if result.ParseFailed {
		p.cfg.Logger.Warn("stream parse failed, falling back to heuristic confidence", "request_id", requestID)
	}

	choice, err := p.cfg.Store.Select(ctx, p.cfg.Generator, p.cfg.Model, text, nil)
	if err != nil {
		return Outcome{RequestID: requestID}, fmt.Errorf("select template: %w", err)
	}

	request, err := p.cfg.Store.Fill(choice.TemplateName, result.Entities, text)
	if err != nil {
		return Outcome{RequestID: requestID}, fmt.Errorf("fill template %s: %w", choice.TemplateName, err)
	}

	intentConfidence := result.Confidence
	entityConfidence := choice.Confidence
	interp := fleetmodel.Interpretation{
		ID:                uuid.New(),
		InputText:         text,
		Intent:            result.Intent,
		Entities:          result.Entities,
		TemplateName:      choice.TemplateName,
		Request:           request,
		IntentConfidence:  intentConfidence,
		EntityConfidence:  entityConfidence,
		OverallConfidence: fleetmodel.ComputeOverallConfidence(&intentConfidence, &entityConfidence),
	}

	machine := approval.New(p.cfg.Registry)
	machine.SetMetrics(p.cfg.Metrics)
	findings := machine.Load(interp)
	outcome := Outcome{RequestID: requestID, Interpretation: interp, Findings: findings}

	userID := "cli"
	if !p.cfg.AutoApprove && !p.cfg.Confirm(request, findings) {
		machine.Reject(userID, "declined")
		return outcome, nil
	}

	if err := machine.Approve(userID); err != nil {
		return outcome, nil
	}
	outcome.Approved = true

	tmpl, ok := p.cfg.Store.Get(choice.TemplateName)
	if !ok {
		return outcome, fmt.Errorf("resolve template %s after selection", choice.TemplateName)
	}
	draft := fleetmodel.APICallDraft{
		Method:   tmpl.Metadata.HTTPMethod,
		Endpoint: tmpl.Metadata.APIEndpoint,
		Body:     request,
		Purpose:  string(result.Intent),
	}

	_, status, execErr := p.cfg.Client.Execute(ctx, draft)
	outcome.Status = status
	ok2 := execErr == nil && status < 300
	detail := "executed successfully"
	if execErr != nil {
		detail = execErr.Error()
	} else if status >= 300 {
		detail = fmt.Sprintf("fleet api returned status %d", status)
	}
	if err := machine.Execute(userID, ok2, detail); err != nil {
		return outcome, fmt.Errorf("record execution: %w", err)
	}
	outcome.Executed = ok2
	if !ok2 {
		return outcome, fmt.Errorf("could not reach fleet api: %s", detail)
	}
	return outcome, nil
}

func (p *Pipeline) awaitResult(ctx context.Context, requestID string) (*fleetmodel.ReasoningResult, error) {
	for {
		result, status := p.cfg.Engine.Result(requestID)
		switch status {
		case reasoning.Ready:
			return result, nil
		case reasoning.NotFound:
			return nil, fleeterr.New(fleeterr.Internal, "reasoning engine lost track of request "+requestID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(resultPollInterval):
		}
	}
}
