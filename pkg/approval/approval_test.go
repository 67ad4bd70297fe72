package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
	"github.com/fleetpilot/corepipe/pkg/fleeterr"
)

func validInterpretation() fleetmodel.Interpretation {
	return fleetmodel.Interpretation{
		InputText: "reserve van 12 for tomorrow",
		Request: map[string]any{
			"resource_id": "VAN-123",
			"date":        "2026-08-02",
			"priority":    "medium",
		},
	}
}

func TestLoad_RunsFieldValidator(t *testing.T) {
	m := New(NewRegistry())
	findings := m.Load(validInterpretation())
	assert.Empty(t, findings)
	assert.Equal(t, Pending, m.State())
}

func TestApprove_BlockedByErrorFindings(t *testing.T) {
	m := New(NewRegistry())
	m.Load(fleetmodel.Interpretation{
		InputText: "x",
		Request:   map[string]any{"resource_id": "not-a-valid-id"},
	})

	err := m.Approve("alice")
	require.Error(t, err)
	assert.True(t, fleeterr.OfKind(err, fleeterr.ValidationBlocked))
	assert.Equal(t, Pending, m.State())
}

func TestApprove_SucceedsAndAudits(t *testing.T) {
	m := New(NewRegistry())
	m.Load(validInterpretation())

	require.NoError(t, m.Approve("alice"))
	assert.Equal(t, Approved, m.State())

	data, err := m.ExportAudit()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Action": "Approve"`)
	assert.Contains(t, string(data), `"UserID": "alice"`)
}

func TestEditThenSave(t *testing.T) {
	m := New(NewRegistry())
	m.Load(validInterpretation())

	findings := m.Edit(func(req map[string]any) map[string]any {
		req["priority"] = "not-a-valid-priority"
		return req
	})
	assert.NotEmpty(t, findings)
	assert.Equal(t, Editing, m.State())

	err := m.Save("alice")
	require.Error(t, err)
	assert.True(t, fleeterr.OfKind(err, fleeterr.ValidationBlocked))

	m.Edit(func(req map[string]any) map[string]any {
		req["priority"] = "high"
		return req
	})
	require.NoError(t, m.Save("alice"))
	assert.Equal(t, Approved, m.State())
}

func TestRegenerate_CombinesFeedbackAndReturnsToPending(t *testing.T) {
	m := New(NewRegistry())
	m.Load(validInterpretation())

	text := m.Regenerate("alice", "actually make it 2 vans")
	assert.Equal(t, "reserve van 12 for tomorrow actually make it 2 vans", text)
	assert.Equal(t, Pending, m.State())
}

func TestReject(t *testing.T) {
	m := New(NewRegistry())
	m.Load(validInterpretation())
	m.Reject("alice", "wrong vehicle")
	assert.Equal(t, Rejected, m.State())
}

func TestExecute_RequiresApprovedState(t *testing.T) {
	m := New(NewRegistry())
	m.Load(validInterpretation())
	err := m.Execute("alice", true, "")
	assert.Error(t, err)

	require.NoError(t, m.Approve("alice"))
	require.NoError(t, m.Execute("alice", true, ""))
	assert.Equal(t, Executed, m.State())
}

func TestRegistry_ValidatesYearAndPassengerRanges(t *testing.T) {
	r := NewRegistry()
	findings := r.Validate(map[string]any{
		"resource_id":     "VAN-12",
		"year":            float64(1999),
		"passenger_count": float64(20),
	})
	fieldsWithErrors := map[string]bool{}
	for _, f := range findings {
		if f.Severity == fleetmodel.SeverityError {
			fieldsWithErrors[f.Field] = true
		}
	}
	assert.True(t, fieldsWithErrors["year"])
	assert.True(t, fieldsWithErrors["passenger_count"])
}

func TestRegistry_AcceptsISODateTime(t *testing.T) {
	r := NewRegistry()
	findings := r.Validate(map[string]any{
		"resource_id":  "VAN-12",
		"scheduled_at": "2026-08-01T14:30:00",
	})
	for _, f := range findings {
		assert.NotEqual(t, "scheduled_at", f.Field)
	}
}
