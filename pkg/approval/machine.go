package approval

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fleetpilot/corepipe/pkg/fleetmodel"
	"github.com/fleetpilot/corepipe/pkg/fleeterr"
	"github.com/fleetpilot/corepipe/pkg/ringbuffer"
)

// State is the approval lifecycle state (spec §4.6).
type State int

const (
	Pending State = iota
	Editing
	Approved
	Rejected
	Executed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Editing:
		return "Editing"
	case Approved:
		return "Approved"
	case Rejected:
		return "Rejected"
	case Executed:
		return "Executed"
	default:
		return "Unknown"
	}
}

const (
	auditCapacity = 100
	auditTrimTo   = 50
)

// ValidationBlockedFindings carries the findings that blocked an Approve
// call; wrapped as a fleeterr.CoreError{Kind: ValidationBlocked} so callers
// can use errors.As for the taxonomy and errors.Unwrap for the detail.
type ValidationBlockedFindings struct {
	Findings []fleetmodel.ValidationFinding
}

func (e *ValidationBlockedFindings) Error() string {
	return fmt.Sprintf("%d blocking finding(s)", len(e.Findings))
}

// AuditRecord is one terminal decision (spec §4.6 "Audit record").
type AuditRecord struct {
	Action          fleetmodel.ApprovalAction
	TakenAt         time.Time
	UserID          string
	OriginalRequest map[string]any
	ModifiedRequest map[string]any
	Feedback        string
}

// MetricsRecorder receives the Machine's Prometheus observations. Declared
// narrowly so *fleetmetrics.Metrics satisfies it structurally without this
// package importing pkg/fleetmetrics.
type MetricsRecorder interface {
	RecordDecision(action string)
	RecordBlocked()
}

type noopMetrics struct{}

func (noopMetrics) RecordDecision(string) {}
func (noopMetrics) RecordBlocked()        {}

// Machine drives one Interpretation's request through the approval
// lifecycle. A fresh Machine (or one reset via Load) is required per
// Interpretation.
type Machine struct {
	registry *Registry
	metrics  MetricsRecorder

	mu              sync.Mutex
	state           State
	interpretation  fleetmodel.Interpretation
	originalRequest map[string]any
	request         map[string]any
	findings        []fleetmodel.ValidationFinding

	audit *ringbuffer.Buffer[AuditRecord]
}

// New constructs a Machine backed by registry.
func New(registry *Registry) *Machine {
	return &Machine{
		registry: registry,
		metrics:  noopMetrics{},
		audit:    ringbuffer.New[AuditRecord](auditCapacity, auditTrimTo),
	}
}

// SetMetrics installs the Prometheus recorder; nil restores the no-op
// recorder.
func (m *Machine) SetMetrics(rec MetricsRecorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec == nil {
		rec = noopMetrics{}
	}
	m.metrics = rec
}

// Load enters Pending with interpretation's request, running the field
// validator immediately.
func (m *Machine) Load(interpretation fleetmodel.Interpretation) []fleetmodel.ValidationFinding {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.interpretation = interpretation
	m.originalRequest = interpretation.Request
	m.request = interpretation.Request
	m.state = Pending
	m.findings = m.registry.Validate(m.request)
	return m.findings
}

// State reports the machine's current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Findings reports the current request's most recent validation findings.
func (m *Machine) Findings() []fleetmodel.ValidationFinding {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]fleetmodel.ValidationFinding(nil), m.findings...)
}

func hasError(findings []fleetmodel.ValidationFinding) bool {
	for _, f := range findings {
		if f.Severity == fleetmodel.SeverityError {
			return true
		}
	}
	return false
}

// Approve requires zero Error findings in the current request; otherwise it
// returns a fleeterr.CoreError{Kind: ValidationBlocked} wrapping the
// offending findings.
func (m *Machine) Approve(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hasError(m.findings) {
		m.metrics.RecordBlocked()
		return fleeterr.Wrap(fleeterr.ValidationBlocked, "request has blocking validation findings",
			&ValidationBlockedFindings{Findings: append([]fleetmodel.ValidationFinding(nil), m.findings...)})
	}
	m.state = Approved
	m.appendAudit(fleetmodel.ActionApprove, userID, "")
	m.metrics.RecordDecision("approve")
	return nil
}

// Edit replaces the request object via mutator, re-runs the field
// validator, and transitions to Editing. The new findings are returned so
// the caller can decide whether to Save.
func (m *Machine) Edit(mutator func(map[string]any) map[string]any) []fleetmodel.ValidationFinding {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.request = mutator(copyRequest(m.request))
	m.state = Editing
	m.findings = m.registry.Validate(m.request)
	return m.findings
}

// Save commits an Editing machine to Approved(modified); it requires zero
// Error findings, same as Approve.
func (m *Machine) Save(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hasError(m.findings) {
		m.metrics.RecordBlocked()
		return fleeterr.Wrap(fleeterr.ValidationBlocked, "edited request has blocking validation findings",
			&ValidationBlockedFindings{Findings: append([]fleetmodel.ValidationFinding(nil), m.findings...)})
	}
	m.state = Approved
	m.appendAudit(fleetmodel.ActionEditApprove, userID, "")
	m.metrics.RecordDecision("save")
	return nil
}

// Regenerate closes the current approval cycle and returns the combined
// text the caller should resubmit to the Reasoning Engine
// (original_text + " " + feedback), per spec §4.6.
func (m *Machine) Regenerate(userID, feedback string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.appendAudit(fleetmodel.ActionRegenerate, userID, feedback)
	m.state = Pending
	m.metrics.RecordDecision("regenerate")
	if feedback == "" {
		return m.interpretation.InputText
	}
	return m.interpretation.InputText + " " + feedback
}

// Reject transitions to Rejected; feedback is optional.
func (m *Machine) Reject(userID, feedback string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = Rejected
	m.appendAudit(fleetmodel.ActionReject, userID, feedback)
	m.metrics.RecordDecision("reject")
}

// Execute transitions an Approved machine to Executed. It does not itself
// call the external HTTP client; the caller does that and reports the
// outcome here for the audit trail.
func (m *Machine) Execute(userID string, ok bool, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Approved {
		return fmt.Errorf("approval: cannot execute from state %s", m.state)
	}
	m.state = Executed
	feedback := detail
	if ok && feedback == "" {
		feedback = "executed successfully"
	}
	m.appendAudit(fleetmodel.ActionApprove, userID, feedback)
	m.metrics.RecordDecision("execute")
	return nil
}

// appendAudit must be called with mu held.
func (m *Machine) appendAudit(action fleetmodel.ApprovalAction, userID, feedback string) {
	record := AuditRecord{
		Action:          action,
		TakenAt:         time.Now(),
		UserID:          userID,
		OriginalRequest: m.originalRequest,
		Feedback:        feedback,
	}
	if !requestsEqual(m.request, m.originalRequest) {
		record.ModifiedRequest = m.request
	}
	m.audit.Append(record)
}

// ExportAudit returns the audit log as a JSON array (spec §4.6).
func (m *Machine) ExportAudit() ([]byte, error) {
	records := m.audit.Snapshot()
	return json.MarshalIndent(records, "", "  ")
}

func copyRequest(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func requestsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || fmt.Sprint(v) != fmt.Sprint(bv) {
			return false
		}
	}
	return true
}
