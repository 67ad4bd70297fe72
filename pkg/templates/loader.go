package templates

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
)

// fileTemplate mirrors the on-disk template file shape (spec §6 "Template
// file format"): metadata fields plus a body whose leaves are either
// literals or `{slot: <entity-kind>}` references.
type fileTemplate struct {
	Name             string   `yaml:"name" json:"name"`
	Category         string   `yaml:"category" json:"category"`
	Description      string   `yaml:"description" json:"description"`
	RequiredEntities []string `yaml:"required_entities" json:"required_entities"`
	OptionalEntities []string `yaml:"optional_entities" json:"optional_entities"`
	APIEndpoint      string   `yaml:"api_endpoint" json:"api_endpoint"`
	HTTPMethod       string   `yaml:"http_method" json:"http_method"`
	Body             map[string]any `yaml:"body" json:"body"`
}

// LoadDir loads every .yaml/.yml/.json file in dir into s, registering one
// Template per file. Files are loaded as YAML with a JSON fallback by
// extension (spec §6).
func LoadDir(s *Store, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("templates: read dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("templates: read %s: %w", path, err)
		}
		tmpl, err := parseFile(raw, ext)
		if err != nil {
			return fmt.Errorf("templates: parse %s: %w", path, err)
		}
		s.Register(tmpl)
	}
	return nil
}

func parseFile(raw []byte, ext string) (Template, error) {
	var ft fileTemplate
	var err error
	if ext == ".json" {
		err = json.Unmarshal(raw, &ft)
	} else {
		err = yaml.Unmarshal(raw, &ft)
	}
	if err != nil {
		return Template{}, err
	}
	if ft.Name == "" {
		return Template{}, fmt.Errorf("template is missing a name")
	}

	return Template{
		Metadata: fleetmodel.TemplateMetadata{
			Name:             ft.Name,
			Category:         ft.Category,
			Description:      ft.Description,
			RequiredEntities: toEntityKinds(ft.RequiredEntities),
			OptionalEntities: toEntityKinds(ft.OptionalEntities),
			APIEndpoint:      ft.APIEndpoint,
			HTTPMethod:       ft.HTTPMethod,
		},
		Body: resolveSlots(ft.Body).(map[string]any),
	}, nil
}

func toEntityKinds(names []string) []fleetmodel.EntityKind {
	out := make([]fleetmodel.EntityKind, 0, len(names))
	for _, n := range names {
		out = append(out, fleetmodel.EntityKind(n))
	}
	return out
}

// resolveSlots walks a decoded YAML/JSON body replacing every
// {"slot": "<kind>"} leaf with a SlotRef, recursively.
func resolveSlots(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if kind, ok := slotKind(val); ok {
			return SlotRef{Kind: fleetmodel.EntityKind(kind)}
		}
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = resolveSlots(child)
		}
		return out
	case map[any]any:
		// gopkg.in/yaml.v3 decodes untyped maps with string keys as
		// map[string]any already when the target is `any`, but guard the
		// legacy shape defensively.
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[fmt.Sprint(k)] = resolveSlots(child)
		}
		if kind, ok := slotKind(out); ok {
			return SlotRef{Kind: fleetmodel.EntityKind(kind)}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = resolveSlots(child)
		}
		return out
	default:
		return val
	}
}

func slotKind(m map[string]any) (string, bool) {
	if len(m) != 1 {
		return "", false
	}
	raw, ok := m["slot"]
	if !ok {
		return "", false
	}
	kind, ok := raw.(string)
	return kind, ok
}
