package templates

import (
	"sort"

	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
)

// Analytics summarizes the store's selection history (spec §4.5).
type Analytics struct {
	Total                    int
	AverageConfidence        float32
	MostSelectedTop5         []TemplateCount
	ConfidenceBandDistribution map[fleetmodel.ConfidenceBand]int
}

// TemplateCount pairs a template name with how many times it was selected.
type TemplateCount struct {
	Name  string
	Count int
}

// Analytics computes the selection-history summary.
func (s *Store) Analytics() Analytics {
	records := s.history.Snapshot()

	result := Analytics{
		Total:                      len(records),
		ConfidenceBandDistribution: make(map[fleetmodel.ConfidenceBand]int),
	}
	if len(records) == 0 {
		return result
	}

	counts := make(map[string]int)
	var confidenceSum float32
	for _, r := range records {
		counts[r.Template]++
		confidenceSum += r.Confidence
		result.ConfidenceBandDistribution[fleetmodel.BandFor(r.Confidence)]++
	}
	result.AverageConfidence = confidenceSum / float32(len(records))

	top := make([]TemplateCount, 0, len(counts))
	for name, count := range counts {
		top = append(top, TemplateCount{Name: name, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Name < top[j].Name
	})
	if len(top) > 5 {
		top = top[:5]
	}
	result.MostSelectedTop5 = top
	return result
}
