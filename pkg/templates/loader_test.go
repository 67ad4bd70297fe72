package templates

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
name: reserve_vehicle
category: resource_reservation
description: Reserve a vehicle for a date range
required_entities: [resource_id, date]
optional_entities: [duration]
api_endpoint: /reservations
http_method: POST
body:
  vehicle_id:
    slot: resource_id
  start_date:
    slot: date
  notes: "fixed literal"
`

const sampleJSON = `{
  "name": "report_issue",
  "category": "task_scheduling",
  "required_entities": ["resource_id"],
  "api_endpoint": "/issues",
  "http_method": "POST",
  "body": {"vehicle_id": {"slot": "resource_id"}}
}`

func TestLoadDir_RegistersYAMLAndJSONTemplates(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "reserve.yaml"), []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report.json"), []byte(sampleJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New()
	if err := LoadDir(s, dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	all := s.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 templates, got %d", len(all))
	}

	tmpl, ok := s.Get("reserve_vehicle")
	if !ok {
		t.Fatal("expected reserve_vehicle to be registered")
	}
	slot, ok := tmpl.Body["vehicle_id"].(SlotRef)
	if !ok {
		t.Fatalf("expected vehicle_id to resolve to a SlotRef, got %T", tmpl.Body["vehicle_id"])
	}
	if slot.Kind != "resource_id" {
		t.Errorf("expected resource_id slot, got %s", slot.Kind)
	}
	if tmpl.Body["notes"] != "fixed literal" {
		t.Errorf("expected literal notes value to survive, got %v", tmpl.Body["notes"])
	}
}

func TestLoadDir_MissingNameIsAnError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("category: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New()
	if err := LoadDir(s, dir); err == nil {
		t.Fatal("expected an error for a template missing a name")
	}
}

func TestLoadDir_IgnoresNonTemplateFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a template"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New()
	if err := LoadDir(s, dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(s.All()) != 0 {
		t.Errorf("expected no templates registered from a non-template file")
	}
}
