// Package fleetmodel holds the shared data types that flow through the
// NLP-to-request pipeline: server lifecycle state, stream chunks, reasoning
// steps, interpretations, template metadata, validation findings and
// approval decisions.
package fleetmodel

import (
	"time"

	"github.com/google/uuid"
)

// ModelIdentifier names a model in the local LLM registry, e.g. "qwen2.5:14b".
type ModelIdentifier string

// ServerState is the lifecycle state of the managed LLM subprocess.
type ServerState int

const (
	ServerStopped ServerState = iota
	ServerStarting
	ServerRunning
	ServerError
)

func (s ServerState) String() string {
	switch s {
	case ServerStopped:
		return "Stopped"
	case ServerStarting:
		return "Starting"
	case ServerRunning:
		return "Running"
	case ServerError:
		return "Error"
	default:
		return "Unknown"
	}
}

// DownloadProgress reports incremental model-pull progress.
type DownloadProgress struct {
	Status         string
	CompletedBytes uint64
	TotalBytes     uint64
	Percent        float32
}

// StreamChunk is one token fragment received from the LLM stream.
type StreamChunk struct {
	Content    string
	ReceivedAt time.Time
	Seq        uint64
	Final      bool
}

// EntityKind is the canonical label attached to an extracted value.
type EntityKind string

const (
	EntityResourceID EntityKind = "resource_id"
	EntityDate       EntityKind = "date"
	EntityTime       EntityKind = "time"
	EntityLocation   EntityKind = "location"
	EntityUser       EntityKind = "user"
	EntityDuration   EntityKind = "duration"
	EntityCost       EntityKind = "cost"
	EntityMileage    EntityKind = "mileage"
	EntityFuel       EntityKind = "fuel"
	EntityStatus     EntityKind = "status"
	EntityPriority   EntityKind = "priority"
)

// IntentTag is the top-level classification of a user request.
type IntentTag string

const (
	IntentResourceReservation IntentTag = "resource_reservation"
	IntentTaskScheduling      IntentTag = "task_scheduling"
	IntentStatusQuery         IntentTag = "status_query"
	IntentInventoryManagement IntentTag = "inventory_management"
	IntentReportingAnalytics  IntentTag = "reporting_analytics"
	IntentUserManagement      IntentTag = "user_management"
	IntentUnknown             IntentTag = "unknown"
)

// APICallDraft is a candidate HTTP call surfaced by the model's "API Mapping"
// reasoning step.
type APICallDraft struct {
	Method   string
	Endpoint string
	Body     map[string]any
	Purpose  string
}

// ReasoningStep is one named phase of the model's chain of thought.
type ReasoningStep struct {
	Name       string
	Narrative  string
	Findings   []string
	Confidence *float32
	Entities   map[EntityKind][]string
	APICalls   []APICallDraft
}

// Interpretation is the outcome of running one input through the pipeline.
type Interpretation struct {
	ID                uuid.UUID
	InputText         string
	Intent            IntentTag
	Entities          map[EntityKind][]string
	TemplateName      string
	Request           map[string]any
	IntentConfidence  float32
	EntityConfidence  float32
	OverallConfidence float32
}

// ComputeOverallConfidence implements the spec invariant: the mean of
// whichever of {intent, entity} confidence signals are actually defined.
// Absent signals never contribute and never produce a NaN.
func ComputeOverallConfidence(intentConfidence *float32, entityConfidence *float32) float32 {
	var sum float32
	var n int
	if intentConfidence != nil {
		sum += *intentConfidence
		n++
	}
	if entityConfidence != nil {
		sum += *entityConfidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float32(n)
}

// ConfidenceBand is the coarse bucket a scalar confidence in [0,1] falls into.
type ConfidenceBand string

const (
	BandVeryLow  ConfidenceBand = "VeryLow"
	BandLow      ConfidenceBand = "Low"
	BandMedium   ConfidenceBand = "Medium"
	BandHigh     ConfidenceBand = "High"
	BandVeryHigh ConfidenceBand = "VeryHigh"
)

// BandFor buckets a confidence value per spec §3:
// [0,0.4) VeryLow, [0.4,0.6) Low, [0.6,0.8) Medium, [0.8,0.9) High, [0.9,1.0] VeryHigh.
func BandFor(confidence float32) ConfidenceBand {
	switch {
	case confidence < 0.4:
		return BandVeryLow
	case confidence < 0.6:
		return BandLow
	case confidence < 0.8:
		return BandMedium
	case confidence < 0.9:
		return BandHigh
	default:
		return BandVeryHigh
	}
}

// TemplateMetadata describes a request template without its body.
type TemplateMetadata struct {
	Name              string
	Category          string
	Description       string
	RequiredEntities  []EntityKind
	OptionalEntities  []EntityKind
	APIEndpoint       string
	HTTPMethod        string
	UsageCount        uint64
	SuccessRate       float32
}

// TemplateChoice is the AI selector's verdict for one input.
type TemplateChoice struct {
	TemplateName    string
	Confidence      float32
	ConfidenceBand  ConfidenceBand
	Reasoning       string
	Alternatives    []string
	KeyFactors      []string
}

// Severity classifies a ValidationFinding.
type Severity string

const (
	SeverityError   Severity = "Error"
	SeverityWarning Severity = "Warning"
	SeverityInfo    Severity = "Info"
)

// ValidationFinding is one field-level validation result.
type ValidationFinding struct {
	Field      string
	Severity   Severity
	Message    string
	Suggestion string
}

// ApprovalAction is the action a user took on an Interpretation.
type ApprovalAction string

const (
	ActionApprove     ApprovalAction = "Approve"
	ActionEditApprove ApprovalAction = "EditApprove"
	ActionRegenerate  ApprovalAction = "Regenerate"
	ActionReject      ApprovalAction = "Reject"
)

// ApprovalDecision is the terminal record of a user's disposition of a
// generated request.
type ApprovalDecision struct {
	Action      ApprovalAction
	TakenAt     time.Time
	UserID      string
	Original    Interpretation
	Modified    map[string]any
	Feedback    string
}

// ReasoningResult is the final output of driving one request through the
// Reasoning Engine (C4).
type ReasoningResult struct {
	RequestID       string
	Intent          IntentTag
	Confidence      float32
	Steps           []ReasoningStep
	Entities        map[EntityKind][]string
	APICalls        []APICallDraft
	RawResponse     string
	ParseFailed     bool
	ProcessingTime  time.Duration
	StartedAt       time.Time
}
