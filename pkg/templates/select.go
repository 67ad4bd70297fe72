package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fleetpilot/corepipe/pkg/fleetlog"
	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
	"github.com/fleetpilot/corepipe/pkg/llmproc"
	"github.com/fleetpilot/corepipe/pkg/promptbuild"
)

const (
	selectTemperature = 0.3
	selectMaxTokens   = 1000
)

// Generator is the narrow dependency Select needs: a single blocking
// completion call, matching *llmproc.Manager's Generate method.
type Generator interface {
	Generate(ctx context.Context, req llmproc.GenerateRequest) (llmproc.GenerateResponse, error)
}

// SelectionRecord is one entry in the store's selection history.
type SelectionRecord struct {
	InputText   string
	Template    string
	Confidence  float32
	Reasoning   string
	RawResponse string
}

type selectionResponse struct {
	SelectedTemplate string   `json:"selected_template"`
	Confidence       float32  `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
	KeyFactors       []string `json:"key_factors"`
	Alternatives     []string `json:"alternatives"`
	MatchedExamples  []string `json:"matched_examples"`
}

// Select picks the best-fit template for inputText by issuing a
// template-selection prompt to gen in blocking mode (spec §4.5).
func (s *Store) Select(ctx context.Context, gen Generator, model fleetmodel.ModelIdentifier, inputText string, examples map[string][]string) (fleetmodel.TemplateChoice, error) {
	all := s.All()
	if len(all) == 0 {
		return fleetmodel.TemplateChoice{}, ErrNoTemplates
	}

	prompt := promptbuild.BuildTemplateSelectionPrompt(inputText, promptbuild.TemplateSelectionInput{
		Templates: all,
		Examples:  examples,
	})

	resp, err := gen.Generate(ctx, llmproc.GenerateRequest{
		Model:       model,
		System:      promptbuild.BuildSystemPrompt(promptbuild.Slots{}),
		Prompt:      prompt,
		Temperature: selectTemperature,
		MaxTokens:   selectMaxTokens,
	})
	if err != nil {
		choice := s.deterministicChoice(fmt.Sprintf("generation failed: %v", err))
		s.metrics.RecordFallback("deterministic")
		s.recordSelection(inputText, choice, "")
		return choice, nil
	}

	parsed, ok := parseSelectionResponse(resp.Response)
	if !ok {
		choice := s.deterministicChoice("model response was not valid selection JSON")
		s.metrics.RecordFallback("deterministic")
		s.recordSelection(inputText, choice, resp.Response)
		return choice, nil
	}

	templateName := parsed.SelectedTemplate
	if _, exists := s.Get(templateName); !exists {
		fallbackName, found := s.closestByJaccard(templateName)
		if !found {
			choice := s.deterministicChoice(fmt.Sprintf("model named unknown template %q and no close match was found", templateName))
			s.metrics.RecordFallback("deterministic")
			s.recordSelection(inputText, choice, resp.Response)
			return choice, nil
		}
		fleetlog.Get().Warn("template selection fell back to closest match",
			"requested", parsed.SelectedTemplate, "matched", fallbackName)
		s.metrics.RecordFallback("jaccard")
		templateName = fallbackName
	}

	choice := fleetmodel.TemplateChoice{
		TemplateName:   templateName,
		Confidence:     parsed.Confidence,
		ConfidenceBand: fleetmodel.BandFor(parsed.Confidence),
		Reasoning:      parsed.Reasoning,
		Alternatives:   parsed.Alternatives,
		KeyFactors:     parsed.KeyFactors,
	}
	s.metrics.RecordSelection(choice.TemplateName, choice.Confidence)
	s.recordSelection(inputText, choice, resp.Response)
	return choice, nil
}

func (s *Store) deterministicChoice(reason string) fleetmodel.TemplateChoice {
	best, ok := s.deterministicFallback()
	if !ok {
		return fleetmodel.TemplateChoice{Confidence: 0.1, ConfidenceBand: fleetmodel.BandVeryLow, Reasoning: reason}
	}
	return fleetmodel.TemplateChoice{
		TemplateName:   best.Name,
		Confidence:     0.1,
		ConfidenceBand: fleetmodel.BandVeryLow,
		Reasoning:      reason,
	}
}

func (s *Store) recordSelection(inputText string, choice fleetmodel.TemplateChoice, raw string) {
	s.history.Append(SelectionRecord{
		InputText:   inputText,
		Template:    choice.TemplateName,
		Confidence:  choice.Confidence,
		Reasoning:   choice.Reasoning,
		RawResponse: raw,
	})
}

// parseSelectionResponse tolerates a response wrapped in a ``` code fence
// around the JSON body (spec §4.5: "tolerating surrounding code-fence
// decoration").
func parseSelectionResponse(raw string) (selectionResponse, bool) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var parsed selectionResponse
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return selectionResponse{}, false
	}
	if parsed.SelectedTemplate == "" {
		return selectionResponse{}, false
	}
	return parsed, true
}

// closestByJaccard finds the registered template whose lowercased,
// underscore-stripped name has the highest Jaccard token similarity to
// name, per spec §4.5's fallback rule.
func (s *Store) closestByJaccard(name string) (string, bool) {
	target := tokenSet(name)
	if len(target) == 0 {
		return "", false
	}

	all := s.All()
	var bestName string
	var bestScore float64
	for _, t := range all {
		score := jaccard(target, tokenSet(t.Name))
		if score > bestScore {
			bestScore = score
			bestName = t.Name
		}
	}
	if bestScore == 0 {
		return "", false
	}
	return bestName, true
}

func tokenSet(name string) map[string]bool {
	normalized := strings.ReplaceAll(strings.ToLower(name), "_", " ")
	tokens := strings.Fields(normalized)
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		set[tok] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
