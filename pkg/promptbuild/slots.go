package promptbuild

// Slots defines the composable pieces of the system prompt. Callers can
// override any subset; empty fields fall back to defaultSlots.
//
// Grounded on pkg/reasoning/prompt_slots.go's PromptSlots contract: a fixed
// set of named sections merged with non-empty-override semantics.
type Slots struct {
	SystemRole            string
	ReasoningInstructions string
	EnvelopeContract      string
	OutputFormat          string
	Additional            string
}

// IsEmpty reports whether every slot is unset.
func (s Slots) IsEmpty() bool {
	return s.SystemRole == "" &&
		s.ReasoningInstructions == "" &&
		s.EnvelopeContract == "" &&
		s.OutputFormat == "" &&
		s.Additional == ""
}

// Merge overlays other's non-empty fields onto s, returning the result.
func (s Slots) Merge(other Slots) Slots {
	merged := s
	if other.SystemRole != "" {
		merged.SystemRole = other.SystemRole
	}
	if other.ReasoningInstructions != "" {
		merged.ReasoningInstructions = other.ReasoningInstructions
	}
	if other.EnvelopeContract != "" {
		merged.EnvelopeContract = other.EnvelopeContract
	}
	if other.OutputFormat != "" {
		merged.OutputFormat = other.OutputFormat
	}
	if other.Additional != "" {
		merged.Additional = other.Additional
	}
	return merged
}
