// Package templates implements the Template Store & AI Selector (spec
// §4.5, C5): the library of request templates, AI-assisted selection for a
// given input, and slot filling from extracted entities.
//
// Grounded on pkg/instruction/template.go's metadata-plus-body template
// shape and reasoning/factory.go's registry-by-name idiom.
package templates

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
	"github.com/fleetpilot/corepipe/pkg/ringbuffer"
)

const (
	historyCapacity = 1000
	historyTrimTo   = 500
)

// Template is one entry in the store: metadata plus a JSON-shaped body whose
// leaf values are either literals or slot references.
type Template struct {
	Metadata fleetmodel.TemplateMetadata
	Body     map[string]any
}

// SlotRef marks a leaf in a Template's Body as a reference to an entity
// kind rather than a literal value.
type SlotRef struct {
	Kind fleetmodel.EntityKind
}

// MetricsRecorder receives the Store's Prometheus observations. Declared
// narrowly so *fleetmetrics.Metrics satisfies it structurally without this
// package importing pkg/fleetmetrics.
type MetricsRecorder interface {
	RecordSelection(template string, confidence float32)
	RecordFallback(kind string)
}

type noopMetrics struct{}

func (noopMetrics) RecordSelection(string, float32) {}
func (noopMetrics) RecordFallback(string)           {}

// Store holds the template library and AI-selector state.
type Store struct {
	mu        sync.RWMutex
	templates map[string]*Template
	metrics   MetricsRecorder

	history *ringbuffer.Buffer[SelectionRecord]
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		templates: make(map[string]*Template),
		metrics:   noopMetrics{},
		history:   ringbuffer.New[SelectionRecord](historyCapacity, historyTrimTo),
	}
}

// SetMetrics installs the Prometheus recorder used for subsequent
// selections; nil restores the no-op recorder.
func (s *Store) SetMetrics(m MetricsRecorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m == nil {
		m = noopMetrics{}
	}
	s.metrics = m
}

// Register adds or replaces a template in the store.
func (s *Store) Register(t Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyOf := t
	s.templates[t.Metadata.Name] = &copyOf
}

// Get returns the named template, if present.
func (s *Store) Get(name string) (Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[name]
	if !ok {
		return Template{}, false
	}
	return *t, true
}

// All returns every registered template's metadata, sorted by name.
func (s *Store) All() []fleetmodel.TemplateMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fleetmodel.TemplateMetadata, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t.Metadata)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// deterministicFallback returns the template ranked highest by
// (usage_count, success_rate) lexicographic ordering, per spec §4.5.
func (s *Store) deterministicFallback() (fleetmodel.TemplateMetadata, bool) {
	all := s.All()
	if len(all) == 0 {
		return fleetmodel.TemplateMetadata{}, false
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].UsageCount != all[j].UsageCount {
			return all[i].UsageCount > all[j].UsageCount
		}
		return all[i].SuccessRate > all[j].SuccessRate
	})
	return all[0], true
}

// ErrNoTemplates is returned when the store has nothing to select from.
var ErrNoTemplates = fmt.Errorf("templates: store has no registered templates")
