// Package corepipe is the fleet-management natural-language request
// pipeline: free-text input goes through an LLM-backed Reasoning Engine,
// a streaming chain-of-thought parser, an AI-assisted template selector,
// and a human-in-the-loop approval state machine before anything is
// executed against the external Fleet API.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/fleetpilot/corepipe/cmd/fleet-nlp-core@latest
//
// Run it against a config file:
//
//	fleet-nlp-core --config fleet-nlp-core.yaml --input "unlock vehicle V123"
//
// # Using as a Go Library
//
// The pipeline's components live under pkg/ and can be composed directly:
//
//	import (
//	    "github.com/fleetpilot/corepipe/pkg/llmproc"
//	    "github.com/fleetpilot/corepipe/pkg/reasoning"
//	    "github.com/fleetpilot/corepipe/pkg/templates"
//	    "github.com/fleetpilot/corepipe/pkg/approval"
//	)
//
// # Components
//
//   - LLM Subprocess Manager (pkg/llmproc) — spawns and health-checks a
//     local Ollama binary
//   - Stream Processor (pkg/streamproc) — parses streamed chain-of-thought
//     JSON into discrete reasoning steps
//   - Reasoning Engine (pkg/reasoning) — drives one request at a time from
//     raw text to a validated Interpretation
//   - Template Store & AI Selector (pkg/templates) — matches input text to
//     a request template
//   - Validator / Approval State Machine (pkg/approval) — the
//     Pending/Editing/Approved/Rejected/Executed lifecycle
//   - Fleet API client (pkg/fleetapi) — executes the approved request
package corepipe
