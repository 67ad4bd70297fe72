package llmproc

import "github.com/fleetpilot/corepipe/pkg/fleetmodel"

// StateObserver receives every ServerState transition and DownloadProgress
// event emitted by the Manager (spec §4.1 "Subscribe").
type StateObserver interface {
	OnStateChange(prev, next fleetmodel.ServerState)
	OnDownloadProgress(model fleetmodel.ModelIdentifier, progress fleetmodel.DownloadProgress)
}

// ModelRecord is one entry from the LLM runtime's model registry.
type ModelRecord struct {
	Name       string
	Size       int64
	ModifiedAt string
	Digest     string
}

// GenerateRequest is the input to Generate.
type GenerateRequest struct {
	Model       fleetmodel.ModelIdentifier
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	Stream      bool
}

// GenerateResponse is the blocking-path result of Generate.
type GenerateResponse struct {
	Response string
	Done     bool
}
