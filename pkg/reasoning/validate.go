package reasoning

import (
	"fmt"

	"github.com/fleetpilot/corepipe/pkg/entities"
	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
	"github.com/fleetpilot/corepipe/pkg/promptbuild"
)

// ValidationReport is Validate's return shape (spec §4.4 "Validate").
type ValidationReport struct {
	OverallScore     float32
	ConfidenceBand   fleetmodel.ConfidenceBand
	EntityFindings   []*entities.ValidationIssue
	APIFindings      []string
	Recommendations  []string
}

// Validate scores a ReasoningResult against the spec §4.4 rules:
//   - +0.4 if confidence >= 0.8, +0.2 if >= 0.6, else recommend clarification.
//   - +0.3 if entity validation has zero errors.
//   - +0.3 if every APICallDraft has both method and endpoint.
func (e *Engine) Validate(result fleetmodel.ReasoningResult) ValidationReport {
	report := ValidationReport{}

	switch {
	case result.Confidence >= 0.8:
		report.OverallScore += 0.4
	case result.Confidence >= 0.6:
		report.OverallScore += 0.2
	default:
		report.Recommendations = append(report.Recommendations, "confidence is low; ask the user for clarification")
	}

	for kind, values := range result.Entities {
		for _, v := range values {
			if issue := promptbuild.ValidateEntity(kind, v); issue != nil {
				report.EntityFindings = append(report.EntityFindings, issue)
			}
		}
	}
	if len(report.EntityFindings) == 0 {
		report.OverallScore += 0.3
	}

	allComplete := true
	for _, call := range result.APICalls {
		if call.Method == "" || call.Endpoint == "" {
			allComplete = false
			report.APIFindings = append(report.APIFindings,
				fmt.Sprintf("incomplete API call draft for endpoint %q", call.Endpoint))
		}
	}
	if allComplete {
		report.OverallScore += 0.3
	}

	report.ConfidenceBand = fleetmodel.BandFor(report.OverallScore)
	return report
}
